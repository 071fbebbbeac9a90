// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package database

import (
	"database/sql"
	"fmt"
	"time"
)

// AuditAction is the kind of operation an audit row records.
type AuditAction string

const (
	AuditActionIngest  AuditAction = "INGEST"
	AuditActionSearch  AuditAction = "SEARCH"
	AuditActionBlock   AuditAction = "BLOCK"
	AuditActionUnblock AuditAction = "UNBLOCK"
)

// AuditLog is one recorded admin/ingest/search call.
type AuditLog struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	TokenPrefix string    `json:"token_prefix"`
	Action      string    `json:"action"`
	Details     string    `json:"details"`
}

// AuditLogStore records every ingest, search, and block/unblock call so
// /api/v1/stats can report per-action counts beside the content tables'
// own counts.
type AuditLogStore struct {
	db *sql.DB
}

// NewAuditLogStore opens (creating if needed) the audit_logs table.
func NewAuditLogStore(db *sql.DB) (*AuditLogStore, error) {
	store := &AuditLogStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init audit_logs schema: %w", err)
	}
	return store, nil
}

func (s *AuditLogStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		token_prefix TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LogAction appends one audit row. tokenPrefix should be a short, non-secret
// prefix of the caller's bearer token, never the full token.
func (s *AuditLogStore) LogAction(tokenPrefix string, action AuditAction, details string) error {
	_, err := s.db.Exec(
		"INSERT INTO audit_logs (timestamp, token_prefix, action, details) VALUES (?, ?, ?, ?)",
		time.Now(), tokenPrefix, string(action), details,
	)
	return err
}

// GetRecentLogs returns up to limit rows, most recent first, optionally
// filtered to one action type.
func (s *AuditLogStore) GetRecentLogs(limit int, actionFilter string) ([]AuditLog, error) {
	var rows *sql.Rows
	var err error
	if actionFilter != "" {
		rows, err = s.db.Query(
			"SELECT id, timestamp, token_prefix, action, details FROM audit_logs WHERE action = ? ORDER BY timestamp DESC LIMIT ?",
			actionFilter, limit,
		)
	} else {
		rows, err = s.db.Query(
			"SELECT id, timestamp, token_prefix, action, details FROM audit_logs ORDER BY timestamp DESC LIMIT ?",
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.TokenPrefix, &l.Action, &l.Details); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountByAction returns how many rows exist for each action, for the stats
// endpoint's activity breakdown.
func (s *AuditLogStore) CountByAction() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT action, COUNT(*) FROM audit_logs GROUP BY action")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}
