// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package storage

import (
	"database/sql"
	"fmt"
)

const contentSchema = `
CREATE TABLE IF NOT EXISTS crawled_content (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	cleaned_content TEXT NOT NULL,
	markdown TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	retention TEXT NOT NULL DEFAULT 'permanent',
	session_id TEXT,
	tags TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS content_chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	char_start INTEGER NOT NULL,
	char_end INTEGER NOT NULL,
	word_count INTEGER NOT NULL,
	kg_processed BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_content_chunks_content_id ON content_chunks(content_id);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS kg_processing_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	error TEXT NOT NULL DEFAULT '',
	skipped_reason TEXT NOT NULL DEFAULT ''
);
`

// record_id is TEXT rather than INTEGER because sessions is keyed by a
// text session_id while every other tracked table (and content_vectors,
// tracked explicitly rather than by trigger) is keyed by an integer rowid.
const syncTrackerSchema = `
CREATE TABLE IF NOT EXISTS sync_tracker (
	table_name TEXT NOT NULL,
	record_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (table_name, record_id)
);
`

var trackedTables = []string{"crawled_content", "content_chunks", "sessions", "kg_processing_queue"}

// trackedTableIDColumn names the primary key column sync_tracker.record_id
// mirrors for each tracked table. Every table uses "id" except sessions,
// whose natural key is session_id.
func trackedTableIDColumn(table string) string {
	if table == "sessions" {
		return "session_id"
	}
	return "id"
}

func triggerSQL(table string) string {
	idCol := trackedTableIDColumn(table)
	return fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_insert AFTER INSERT ON %[1]s BEGIN
	INSERT OR REPLACE INTO sync_tracker (table_name, record_id, operation) VALUES ('%[1]s', NEW.%[2]s, 'INSERT');
END;
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_update AFTER UPDATE ON %[1]s BEGIN
	INSERT OR REPLACE INTO sync_tracker (table_name, record_id, operation) VALUES ('%[1]s', NEW.%[2]s, 'UPDATE');
END;
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_delete AFTER DELETE ON %[1]s BEGIN
	INSERT OR REPLACE INTO sync_tracker (table_name, record_id, operation) VALUES ('%[1]s', OLD.%[2]s, 'DELETE');
END;
`, table, idCol)
}

func vectorTableSQL(dimension int) string {
	return fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS content_vectors USING vec0(embedding float[%d], content_id integer)",
		dimension,
	)
}

// initContentSchema creates the tabular schema (not the vector virtual
// table, not the sync tracker) on db.
func initContentSchema(db *sql.DB) error {
	_, err := db.Exec(contentSchema)
	return err
}

// initVectorTable creates the sqlite-vec virtual table on db with the
// given embedding dimension.
func initVectorTable(db *sql.DB, dimension int) error {
	_, err := db.Exec(vectorTableSQL(dimension))
	return err
}

// initSyncTracking creates the sync-tracker table and the per-table
// triggers. It is only ever called on the in-memory handle in RAM mode;
// the disk mirror never tracks its own changes.
func initSyncTracking(db *sql.DB) error {
	if _, err := db.Exec(syncTrackerSchema); err != nil {
		return err
	}
	for _, table := range trackedTables {
		if _, err := db.Exec(triggerSQL(table)); err != nil {
			return fmt.Errorf("create triggers for %s: %w", table, err)
		}
	}
	return nil
}
