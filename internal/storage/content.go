// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"
)

// ContentRow mirrors one crawled_content record.
type ContentRow struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	CleanedContent string    `json:"cleaned_content"`
	Timestamp      time.Time `json:"timestamp"`
	Retention      string    `json:"retention"`
	SessionID      string    `json:"session_id,omitempty"`
	Tags           string    `json:"tags"`
	Metadata       string    `json:"metadata"`
}

// UpsertContent inserts a new content row or, on URL collision, updates the
// existing row in place and deletes its prior chunks and vectors within the
// same transaction. GenerateAndStoreVectors is expected to be called next
// to populate the fresh chunk/vector set for the returned content id.
func (e *Engine) UpsertContent(ctx context.Context, url, title, cleaned, retention, tags, metadata, sessionID string) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var contentID int64

	err := withRetry("upsert_content", func() error {
		db := e.writer()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var existingID int64
		err = tx.QueryRowContext(ctx, "SELECT id FROM crawled_content WHERE url = ?", url).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx,
				`INSERT INTO crawled_content (url, title, cleaned_content, markdown, retention, session_id, tags, metadata)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				url, title, cleaned, cleaned, retention, nullableSessionID(sessionID), tags, metadata,
			)
			if err != nil {
				return fmt.Errorf("insert content row: %w", err)
			}
			contentID, err = res.LastInsertId()
			if err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("lookup existing content: %w", err)
		default:
			contentID = existingID
			if err := e.deleteChunksAndVectors(ctx, tx, contentID); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE crawled_content SET title = ?, cleaned_content = ?, markdown = ?, timestamp = CURRENT_TIMESTAMP,
				 retention = ?, session_id = ?, tags = ?, metadata = ? WHERE id = ?`,
				title, cleaned, cleaned, retention, nullableSessionID(sessionID), tags, metadata, contentID,
			)
			if err != nil {
				return fmt.Errorf("update content row: %w", err)
			}
		}

		return tx.Commit()
	})

	return contentID, err
}

func nullableSessionID(sessionID string) interface{} {
	if sessionID == "" {
		return nil
	}
	return sessionID
}

// ForgetURL deletes the content row (and, cascading, its chunks/vectors)
// for url, returning the number of content rows removed (0 or 1).
func (e *Engine) ForgetURL(ctx context.Context, url string) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var removed int64

	err := withRetry("forget_url", func() error {
		db := e.writer()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var contentID int64
		err = tx.QueryRowContext(ctx, "SELECT id FROM crawled_content WHERE url = ?", url).Scan(&contentID)
		if err == sql.ErrNoRows {
			return tx.Commit()
		}
		if err != nil {
			return fmt.Errorf("lookup content for forget: %w", err)
		}

		if err := e.deleteChunksAndVectors(ctx, tx, contentID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM crawled_content WHERE id = ?", contentID)
		if err != nil {
			return fmt.Errorf("delete content row: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return err
		}

		return tx.Commit()
	})

	return removed, err
}

// ClearSession deletes every content row (and its chunks/vectors) scoped to
// sessionID, returning the number of content rows removed.
func (e *Engine) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var removed int64

	err := withRetry("clear_session", func() error {
		db := e.writer()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, "SELECT id FROM crawled_content WHERE session_id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("lookup session content: %w", err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			if err := e.deleteChunksAndVectors(ctx, tx, id); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM crawled_content WHERE session_id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("delete session content rows: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return err
		}

		return tx.Commit()
	})

	return removed, err
}

// ListFilter narrows ListContent's result set. Zero-value fields are
// treated as "no constraint".
type ListFilter struct {
	URLContains string
	Retention   string
	Tag         string
}

// ListContent returns content rows matching filter, newest first.
func (e *Engine) ListContent(ctx context.Context, filter ListFilter, limit, offset int) ([]ContentRow, error) {
	query := "SELECT id, url, title, cleaned_content, timestamp, retention, COALESCE(session_id, ''), tags, metadata FROM crawled_content WHERE 1=1"
	var args []interface{}

	if filter.URLContains != "" {
		query += " AND url LIKE ?"
		args = append(args, "%"+filter.URLContains+"%")
	}
	if filter.Retention != "" {
		query += " AND retention = ?"
		args = append(args, filter.Retention)
	}
	if filter.Tag != "" {
		query += " AND (',' || tags || ',') LIKE ?"
		args = append(args, "%,"+filter.Tag+",%")
	}

	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := e.writer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var out []ContentRow
	for rows.Next() {
		var r ContentRow
		if err := rows.Scan(&r.ID, &r.URL, &r.Title, &r.CleanedContent, &r.Timestamp, &r.Retention, &r.SessionID, &r.Tags, &r.Metadata); err != nil {
			return nil, fmt.Errorf("scan content row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SweepExpired deletes permanent-retention-exempt rows whose N_days
// retention has elapsed. Retention values other than "permanent" and
// "session_only" are parsed as "<N>_days".
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	rows, err := e.writer().QueryContext(ctx,
		"SELECT id, retention, timestamp FROM crawled_content WHERE retention NOT IN ('permanent', 'session_only')")
	if err != nil {
		return 0, fmt.Errorf("sweep: list candidates: %w", err)
	}

	type candidate struct {
		id        int64
		retention string
		timestamp time.Time
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.retention, &c.timestamp); err != nil {
			rows.Close()
			return 0, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()

	var removed int64
	for _, c := range candidates {
		days, ok := parseNDays(c.retention)
		if !ok {
			continue
		}
		if time.Since(c.timestamp) <= time.Duration(days)*24*time.Hour {
			continue
		}
		n, err := e.deleteContentByID(ctx, c.id)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (e *Engine) deleteContentByID(ctx context.Context, contentID int64) (int64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var removed int64
	err := withRetry("sweep_delete", func() error {
		db := e.writer()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := e.deleteChunksAndVectors(ctx, tx, contentID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM crawled_content WHERE id = ?", contentID)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return removed, err
}

func parseNDays(retention string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(retention, "%d_days", &n); err != nil {
		return 0, false
	}
	return n, true
}

// Stats aggregates counts for operator-facing endpoints.
type Stats struct {
	TotalContent int64            `json:"total_content"`
	TotalChunks  int64            `json:"total_chunks"`
	TotalVectors int64            `json:"total_vectors"`
	ByRetention  map[string]int64 `json:"by_retention"`
}

// Stats computes aggregate row counts and a per-retention content count.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	db := e.writer()
	var s Stats
	s.ByRetention = make(map[string]int64)

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crawled_content").Scan(&s.TotalContent); err != nil {
		return s, fmt.Errorf("stats: content count: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content_chunks").Scan(&s.TotalChunks); err != nil {
		return s, fmt.Errorf("stats: chunk count: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content_vectors").Scan(&s.TotalVectors); err != nil {
		return s, fmt.Errorf("stats: vector count: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT retention, COUNT(*) FROM crawled_content GROUP BY retention")
	if err != nil {
		return s, fmt.Errorf("stats: retention breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var retention string
		var count int64
		if err := rows.Scan(&retention, &count); err != nil {
			return s, err
		}
		s.ByRetention[retention] = count
	}

	return s, rows.Err()
}

// DomainCount is one host's stored-page count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// DomainCounts groups stored content by URL host, descending by count.
func (e *Engine) DomainCounts(ctx context.Context) ([]DomainCount, error) {
	rows, err := e.writer().QueryContext(ctx, "SELECT url FROM crawled_content")
	if err != nil {
		return nil, fmt.Errorf("domain counts: list urls: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var rawURL string
		if err := rows.Scan(&rawURL); err != nil {
			return nil, err
		}
		counts[hostOf(rawURL)]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]DomainCount, 0, len(counts))
	for domain, count := range counts {
		out = append(out, DomainCount{Domain: domain, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out, nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return rawURL
	}
	return parsed.Hostname()
}

// MarshalMetadata is a small convenience used by callers building the
// metadata JSON column; kept here so the storage package owns the exact
// encoding its own readers expect.
func MarshalMetadata(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
