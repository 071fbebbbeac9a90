// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package storage

import (
	"context"
	"fmt"
)

// KGQueueRow mirrors one kg_processing_queue record.
type KGQueueRow struct {
	ID         int64  `json:"id"`
	ContentID  int64  `json:"content_id"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error,omitempty"`
}

// EnqueueKGRow inserts a knowledge-graph processing row for contentID.
// status is typically "pending" when the downstream service is reachable
// or "skipped" (with skippedReason set) when it is not; the core never
// talks to the KG service directly, it only persists this row.
func (e *Engine) EnqueueKGRow(ctx context.Context, contentID int64, status, skippedReason string) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var id int64
	err := withRetry("enqueue_kg_row", func() error {
		res, err := e.writer().ExecContext(ctx,
			`INSERT INTO kg_processing_queue (content_id, status, skipped_reason) VALUES (?, ?, ?)`,
			contentID, status, skippedReason,
		)
		if err != nil {
			return fmt.Errorf("insert kg queue row: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}
