// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package storage is the heart of the system: a tabular store with a
// vector-index virtual table companion, plus a change-tracking sidecar for
// differential sync. It opens both database handles; the sync manager
// replays tracked changes onto the disk handle, and the process entrypoints
// also open the metadata, audit-log and blocklist stores on it.
package storage

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/northbound/crawlmemory/internal/embeddings"
)

func init() {
	sqlite_vec.Auto()
}

// Engine is the narrow API the rest of the system uses to read and write
// content, chunks, and vectors.
type Engine struct {
	disk    *sql.DB
	mem     *sql.DB // nil unless running in RAM mode
	ramMode bool

	embedder  embeddings.Embedder
	dimension int

	writeMu sync.Mutex
}

// Open creates (or attaches to) the disk database at dbPath and, when
// ramMode is true, an additional :memory: handle that becomes the active
// writer. Schema and the vector virtual table are created on whichever
// handle(s) need them; the sync-tracker table and its triggers are only
// ever created on the memory handle.
func Open(dbPath string, ramMode bool, embedder embeddings.Embedder) (*Engine, error) {
	disk, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open disk db: %w", err)
	}
	if err := disk.Ping(); err != nil {
		return nil, fmt.Errorf("storage: ping disk db: %w", err)
	}

	dimension := embedder.Dimension()

	if err := initContentSchema(disk); err != nil {
		return nil, fmt.Errorf("storage: init disk schema: %w", err)
	}
	if err := initVectorTable(disk, dimension); err != nil {
		return nil, fmt.Errorf("storage: init disk vector table: %w", err)
	}

	e := &Engine{
		disk:      disk,
		ramMode:   ramMode,
		embedder:  embedder,
		dimension: dimension,
	}

	if !ramMode {
		return e, nil
	}

	mem, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("storage: open memory db: %w", err)
	}
	mem.SetMaxOpenConns(1) // :memory: is one connection's private state

	if err := initContentSchema(mem); err != nil {
		return nil, fmt.Errorf("storage: init memory schema: %w", err)
	}
	if err := initVectorTable(mem, dimension); err != nil {
		return nil, fmt.Errorf("storage: init memory vector table: %w", err)
	}
	if err := initSyncTracking(mem); err != nil {
		return nil, fmt.Errorf("storage: init sync tracking: %w", err)
	}

	e.mem = mem
	return e, nil
}

// writer returns the handle writes and reads should go through: the memory
// handle in RAM mode, the disk handle otherwise.
func (e *Engine) writer() *sql.DB {
	if e.ramMode {
		return e.mem
	}
	return e.disk
}

// Dimension returns the embedding dimension the engine was opened with.
func (e *Engine) Dimension() int {
	return e.dimension
}

// DiskHandle exposes the disk-side handle: the sync manager replays onto
// it, and the metadata, audit-log and blocklist stores keep their own
// tables on it.
func (e *Engine) DiskHandle() *sql.DB {
	return e.disk
}

// MemHandle exposes the memory-side handle for the sync manager. Nil when
// the engine is not running in RAM mode.
func (e *Engine) MemHandle() *sql.DB {
	return e.mem
}

// RAMMode reports whether the engine is running with a memory working set
// in front of the disk mirror.
func (e *Engine) RAMMode() bool {
	return e.ramMode
}

// Close closes whichever handles are open.
func (e *Engine) Close() error {
	var err error
	if e.mem != nil {
		if cerr := e.mem.Close(); cerr != nil {
			err = cerr
		}
	}
	if cerr := e.disk.Close(); cerr != nil {
		err = cerr
	}
	return err
}
