// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package storage

import "context"

// CreateSession inserts the process-lifetime session row. sessionID is
// generated once at startup and never changes for the life of the process,
// so a collision only happens if the same disk file is reopened with the
// same id; INSERT OR IGNORE makes that a no-op rather than an error.
func (e *Engine) CreateSession(ctx context.Context, sessionID string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return withRetry("create_session", func() error {
		_, err := e.writer().ExecContext(ctx,
			"INSERT OR IGNORE INTO sessions (session_id) VALUES (?)", sessionID)
		return err
	})
}
