// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const currentSchemaVersion = "1"

// MetadataStore holds small process-lifetime key/value facts about this
// database file: schema version, install date, and the embedding dimension
// the vector table was built with.
type MetadataStore struct {
	db *sql.DB
}

// NewMetadataStore opens (creating if needed) the system_metadata table.
func NewMetadataStore(db *sql.DB) (*MetadataStore, error) {
	store := &MetadataStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init system_metadata schema: %w", err)
	}
	return store, nil
}

func (s *MetadataStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS system_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves a metadata value by key, returning "" if unset.
func (s *MetadataStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM system_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// Set sets a metadata value by key.
func (s *MetadataStore) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO system_metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// EnsureInstallDate records the first time this database was opened, if not
// already recorded.
func (s *MetadataStore) EnsureInstallDate() error {
	existing, err := s.Get("install_date")
	if err != nil {
		return err
	}
	if existing == "" {
		return s.Set("install_date", time.Now().Format("2006-01-02"))
	}
	return nil
}

// EnsureSchemaVersion records the schema version this database was created
// under, if not already recorded.
func (s *MetadataStore) EnsureSchemaVersion() error {
	existing, err := s.Get("schema_version")
	if err != nil {
		return err
	}
	if existing == "" {
		return s.Set("schema_version", currentSchemaVersion)
	}
	return nil
}

// SchemaVersion returns the recorded schema version, or "" if unset.
func (s *MetadataStore) SchemaVersion() (string, error) {
	return s.Get("schema_version")
}

// RecordEmbeddingDimension persists the dimension the vector table was most
// recently built with.
func (s *MetadataStore) RecordEmbeddingDimension(dim int) error {
	return s.Set("embedding_dimension", strconv.Itoa(dim))
}

// NeedsVectorRebuild reports whether currentDim differs from the dimension
// the stored vectors were built with. An unset recorded dimension means no
// vectors have ever been written and no rebuild is needed.
func (s *MetadataStore) NeedsVectorRebuild(currentDim int) (bool, error) {
	recorded, err := s.Get("embedding_dimension")
	if err != nil {
		return false, err
	}
	if recorded == "" {
		return false, nil
	}
	recordedDim, err := strconv.Atoi(recorded)
	if err != nil {
		return false, fmt.Errorf("parse recorded embedding_dimension %q: %w", recorded, err)
	}
	return recordedDim != currentDim, nil
}
