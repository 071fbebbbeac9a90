// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package syncmanager runs the RAM-mode differential sync between the
// storage engine's in-memory working set and its disk mirror. It is the
// only component that writes the tracked content tables to the disk
// handle.
package syncmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/storage"
)

const (
	idleCheckInterval = 1 * time.Second
	idleThreshold     = 5 * time.Second
	periodicInterval  = 5 * time.Minute
)

// Metrics mirrors the operator-facing stats the design calls for.
type Metrics struct {
	TotalSyncs       int64     `json:"total_syncs"`
	FailedSyncs      int64     `json:"failed_syncs"`
	LastSyncDuration string    `json:"last_sync_duration"`
	TotalRecords     int64     `json:"total_records_synced"`
	PendingChanges   int64     `json:"pending_changes"`
	LastSyncAt       time.Time `json:"last_sync_at"`
	SuccessRatePct   float64   `json:"success_rate_pct"`
}

// Manager owns the idle and periodic monitor goroutines and performs the
// actual differential sync when triggered.
type Manager struct {
	engine *storage.Engine

	mu sync.Mutex // guards a single in-flight sync

	lastWriteAt   atomic.Int64 // unix nano
	idleSyncDone  atomic.Bool

	totalSyncs   atomic.Int64
	failedSyncs  atomic.Int64
	totalRecords atomic.Int64
	lastDuration atomic.Int64 // nanoseconds
	lastSyncAt   atomic.Int64 // unix nano

	stop chan struct{}
	wg   sync.WaitGroup
}

// New snapshots the disk database into the engine's memory handle (a bulk
// copy, backup-style) and returns a Manager ready to Start. It is a no-op
// wrapper if the engine is not running in RAM mode.
func New(engine *storage.Engine) (*Manager, error) {
	if !engine.RAMMode() {
		return &Manager{engine: engine}, nil
	}

	if err := snapshotDiskIntoMemory(engine.DiskHandle(), engine.MemHandle()); err != nil {
		return nil, fmt.Errorf("syncmanager: initial snapshot: %w", err)
	}

	m := &Manager{engine: engine, stop: make(chan struct{})}
	m.lastWriteAt.Store(time.Now().UnixNano())
	return m, nil
}

// Start launches the idle and periodic monitor goroutines. No-op if the
// engine is not running in RAM mode.
func (m *Manager) Start() {
	if !m.engine.RAMMode() {
		return
	}
	m.wg.Add(2)
	go m.idleMonitor()
	go m.periodicMonitor()
}

// NotifyWrite records write activity for the idle monitor. The idle monitor
// calls it itself whenever the sync-tracker backlog has grown since its
// previous check.
func (m *Manager) NotifyWrite() {
	m.lastWriteAt.Store(time.Now().UnixNano())
	m.idleSyncDone.Store(false)
}

func (m *Manager) idleMonitor() {
	defer m.wg.Done()
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	var lastPending int64
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			pending, err := m.pendingChangeCount()
			if err != nil {
				logger.Warnf("syncmanager: idle monitor: count pending changes: %v", err)
				continue
			}
			if pending > lastPending {
				m.NotifyWrite()
			}
			lastPending = pending
			lastWrite := time.Unix(0, m.lastWriteAt.Load())
			if time.Since(lastWrite) >= idleThreshold && pending > 0 && !m.idleSyncDone.Load() {
				if err := m.Sync(context.Background()); err != nil {
					logger.Warnf("syncmanager: idle sync failed: %v", err)
					continue
				}
				m.idleSyncDone.Store(true)
			}
		}
	}
}

func (m *Manager) periodicMonitor() {
	defer m.wg.Done()
	ticker := time.NewTicker(periodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			pending, err := m.pendingChangeCount()
			if err != nil {
				logger.Warnf("syncmanager: periodic monitor: count pending changes: %v", err)
				continue
			}
			if pending > 0 {
				if err := m.Sync(context.Background()); err != nil {
					logger.Warnf("syncmanager: periodic sync failed: %v", err)
				}
			}
		}
	}
}

// Shutdown drains any pending changes with one final sync, stops the
// monitors, and returns. It does not close the engine's handles; the
// caller owns that.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.engine.RAMMode() {
		return nil
	}
	close(m.stop)
	m.wg.Wait()
	return m.Sync(ctx)
}

// Metrics returns a snapshot of sync health for the stats endpoint.
func (m *Manager) Metrics() Metrics {
	total := m.totalSyncs.Load()
	failed := m.failedSyncs.Load()
	successRate := 100.0
	if total > 0 {
		successRate = float64(total-failed) / float64(total) * 100
	}

	pending, _ := m.pendingChangeCount()

	return Metrics{
		TotalSyncs:       total,
		FailedSyncs:      failed,
		LastSyncDuration: time.Duration(m.lastDuration.Load()).String(),
		TotalRecords:     m.totalRecords.Load(),
		PendingChanges:   pending,
		LastSyncAt:       time.Unix(0, m.lastSyncAt.Load()),
		SuccessRatePct:   successRate,
	}
}

func (m *Manager) pendingChangeCount() (int64, error) {
	if !m.engine.RAMMode() {
		return 0, nil
	}
	var count int64
	err := m.engine.MemHandle().QueryRow("SELECT COUNT(*) FROM sync_tracker").Scan(&count)
	return count, err
}

type trackerRow struct {
	table     string
	recordID  string
	operation string
}

// Sync replays every sync-tracker row onto the disk mirror and clears the
// tracker on success. Guarded by mu so only one sync runs at a time; a
// failed sync rolls back its disk transaction, leaves the tracker intact,
// and increments the failure counter so the next trigger retries.
func (m *Manager) Sync(ctx context.Context) error {
	if !m.engine.RAMMode() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	rows, err := m.readTrackerRows(ctx)
	if err != nil {
		return fmt.Errorf("syncmanager: read tracker: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	n, err := m.applyToDisk(ctx, rows)
	m.totalSyncs.Add(1)
	m.lastDuration.Store(int64(time.Since(start)))
	m.lastSyncAt.Store(time.Now().UnixNano())

	if err != nil {
		m.failedSyncs.Add(1)
		return fmt.Errorf("syncmanager: apply to disk: %w", err)
	}

	m.totalRecords.Add(int64(n))
	if err := m.clearTracker(ctx, rows); err != nil {
		return fmt.Errorf("syncmanager: clear tracker: %w", err)
	}
	return nil
}

func (m *Manager) readTrackerRows(ctx context.Context) ([]trackerRow, error) {
	rows, err := m.engine.MemHandle().QueryContext(ctx, "SELECT table_name, record_id, operation FROM sync_tracker")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trackerRow
	for rows.Next() {
		var r trackerRow
		if err := rows.Scan(&r.table, &r.recordID, &r.operation); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *Manager) clearTracker(ctx context.Context, rows []trackerRow) error {
	tx, err := m.engine.MemHandle().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM sync_tracker WHERE table_name = ? AND record_id = ?", r.table, r.recordID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// tableColumns lists the columns replayed for each regular tracked table.
// content_vectors is handled separately since it is a virtual table.
var tableColumns = map[string][]string{
	"crawled_content":     {"id", "url", "title", "cleaned_content", "markdown", "timestamp", "retention", "session_id", "tags", "metadata"},
	"content_chunks":      {"id", "content_id", "chunk_index", "text", "char_start", "char_end", "word_count", "kg_processed"},
	"sessions":            {"session_id", "created_at"},
	"kg_processing_queue": {"id", "content_id", "status", "retry_count", "created_at", "updated_at", "error", "skipped_reason"},
}

func (m *Manager) applyToDisk(ctx context.Context, rows []trackerRow) (int, error) {
	tx, err := m.engine.DiskHandle().BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	applied := 0
	for _, r := range rows {
		var err error
		if r.table == "content_vectors" {
			err = m.replayVectorChange(ctx, tx, r)
		} else {
			err = m.replayRegularChange(ctx, tx, r)
		}
		if err != nil {
			return applied, fmt.Errorf("replay %s#%s (%s): %w", r.table, r.recordID, r.operation, err)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return applied, err
	}
	return applied, nil
}

func (m *Manager) replayRegularChange(ctx context.Context, tx *sql.Tx, r trackerRow) error {
	if r.operation == "DELETE" {
		idCol := "id"
		if r.table == "sessions" {
			idCol = "session_id"
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.table, idCol), r.recordID)
		return err
	}

	cols, ok := tableColumns[r.table]
	if !ok {
		return fmt.Errorf("unknown tracked table %s", r.table)
	}

	idCol := cols[0]
	record, err := m.fetchRecord(ctx, r.table, idCol, r.recordID, cols)
	if err == sql.ErrNoRows {
		// Row was deleted again before this sync ran; nothing to replay.
		return nil
	}
	if err != nil {
		return err
	}

	placeholders := make([]string, len(cols))
	updateAssigns := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = "?"
		if c != idCol {
			updateAssigns = append(updateAssigns, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		r.table, joinColumns(cols), joinColumns(placeholders), idCol, joinColumns(updateAssigns),
	)
	_, err = tx.ExecContext(ctx, query, record...)
	return err
}

func (m *Manager) fetchRecord(ctx context.Context, table, idCol, id string, cols []string) ([]interface{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", joinColumns(cols), table, idCol)
	row := m.engine.MemHandle().QueryRowContext(ctx, query, id)

	values := make([]interface{}, len(cols))
	scanTargets := make([]interface{}, len(cols))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	if err := row.Scan(scanTargets...); err != nil {
		return nil, err
	}
	return values, nil
}

// replayVectorChange deletes then re-inserts the disk-side vector row, since
// vec0 virtual tables do not accept INSERT ... ON CONFLICT.
func (m *Manager) replayVectorChange(ctx context.Context, tx *sql.Tx, r trackerRow) error {
	var rowID int64
	if _, err := fmt.Sscan(r.recordID, &rowID); err != nil {
		return fmt.Errorf("parse vector rowid %q: %w", r.recordID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM content_vectors WHERE rowid = ?", rowID); err != nil {
		return err
	}
	if r.operation == "DELETE" {
		return nil
	}

	var embedding []byte
	var contentID int64
	err := m.engine.MemHandle().QueryRowContext(ctx,
		"SELECT embedding, content_id FROM content_vectors WHERE rowid = ?", rowID,
	).Scan(&embedding, &contentID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO content_vectors(rowid, embedding, content_id) VALUES (?, ?, ?)",
		rowID, embedding, contentID,
	)
	return err
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// snapshotDiskIntoMemory bulk-copies every tracked table's rows from disk
// into the freshly opened memory handle. Used once at startup.
func snapshotDiskIntoMemory(disk, mem *sql.DB) error {
	tables := []string{"crawled_content", "content_chunks", "sessions", "kg_processing_queue"}
	for _, table := range tables {
		if err := copyTable(disk, mem, table); err != nil {
			return fmt.Errorf("snapshot %s: %w", table, err)
		}
	}
	return copyVectors(disk, mem)
}

func copyTable(disk, mem *sql.DB, table string) error {
	rows, err := disk.Query(fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinColumns(cols), joinColumns(placeholders))

	for rows.Next() {
		values := make([]interface{}, len(cols))
		scanTargets := make([]interface{}, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return err
		}
		if _, err := mem.Exec(insertSQL, values...); err != nil {
			return err
		}
	}
	return rows.Err()
}

func copyVectors(disk, mem *sql.DB) error {
	rows, err := disk.Query("SELECT rowid, embedding, content_id FROM content_vectors")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rowid, contentID int64
		var embedding []byte
		if err := rows.Scan(&rowid, &embedding, &contentID); err != nil {
			return err
		}
		if _, err := mem.Exec(
			"INSERT INTO content_vectors(rowid, embedding, content_id) VALUES (?, ?, ?)",
			rowid, embedding, contentID,
		); err != nil {
			return err
		}
	}
	return rows.Err()
}
