// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/northbound/crawlmemory/internal/chunker"
	"github.com/northbound/crawlmemory/internal/chunkfilter"
)

// GenerateAndStoreVectors chunks cleanedText, drops low-quality chunks,
// embeds the survivors, and inserts the resulting chunk/vector rows for
// contentID in one transaction. Callers are expected to have already
// cleared any prior chunk/vector set for contentID (UpsertContent does
// this for the upsert-replace case). Returns the number of chunks produced
// by the chunker and the number that survived filtering and were stored.
func (e *Engine) GenerateAndStoreVectors(ctx context.Context, contentID int64, cleanedText string) (nChunks, nKept int, err error) {
	raw := chunker.Chunk(cleanedText)
	kept := chunkfilter.Filter(raw)
	nChunks = len(raw)
	nKept = len(kept)

	if len(kept) == 0 {
		return nChunks, nKept, nil
	}

	texts := make([]string, len(kept))
	for i, c := range kept {
		texts[i] = c.Text
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nChunks, nKept, fmt.Errorf("embed chunks: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	err = withRetry("generate_and_store_vectors", func() error {
		db := e.writer()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i, c := range kept {
			chunkRowID, err := insertChunk(ctx, tx, contentID, c)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.Index, err)
			}
			if err := e.insertVector(ctx, tx, chunkRowID, contentID, vectors[i]); err != nil {
				return fmt.Errorf("insert vector %d: %w", c.Index, err)
			}
		}

		return tx.Commit()
	})

	return nChunks, nKept, err
}

func insertChunk(ctx context.Context, tx *sql.Tx, contentID int64, c chunker.Chunk) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO content_chunks (id, content_id, chunk_index, text, char_start, char_end, word_count)
		 VALUES (NULL, ?, ?, ?, ?, ?, ?)`,
		contentID, c.Index, c.Text, c.CharStart, c.CharEnd, c.WordCount,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// insertVector writes one embedding row into the vec0 virtual table, keyed
// by chunkRowID, and records an explicit sync-tracker entry since the
// virtual table cannot carry triggers.
func (e *Engine) insertVector(ctx context.Context, tx *sql.Tx, chunkRowID, contentID int64, vector []float32) error {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO content_vectors(rowid, embedding, content_id) VALUES (?, ?, ?)",
		chunkRowID, blob, contentID,
	); err != nil {
		return fmt.Errorf("insert vector row: %w", err)
	}
	return e.trackVectorChange(ctx, tx, chunkRowID, "INSERT")
}

// deleteChunksAndVectors removes every chunk (and its paired vector) for
// contentID within tx. The virtual table only supports delete-by-rowid, so
// the rowids are first listed from the companion chunk table.
func (e *Engine) deleteChunksAndVectors(ctx context.Context, tx *sql.Tx, contentID int64) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM content_chunks WHERE content_id = ?", contentID)
	if err != nil {
		return fmt.Errorf("list chunk rowids: %w", err)
	}
	var rowIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		rowIDs = append(rowIDs, id)
	}
	rows.Close()

	for _, id := range rowIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM content_vectors WHERE rowid = ?", id); err != nil {
			return fmt.Errorf("delete vector row %d: %w", id, err)
		}
		if err := e.trackVectorChange(ctx, tx, id, "DELETE"); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM content_chunks WHERE content_id = ?", contentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	return nil
}

// trackVectorChange is the single entry point every vector write must go
// through so differential sync can replay it later. It is a no-op when the
// engine is not running against an in-memory sync-tracked handle.
func (e *Engine) trackVectorChange(ctx context.Context, tx *sql.Tx, rowID int64, operation string) error {
	if !e.ramMode {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_tracker (table_name, record_id, operation) VALUES ('content_vectors', ?, ?)",
		rowID, operation,
	)
	if err != nil {
		return fmt.Errorf("track vector change: %w", err)
	}
	return nil
}

// Hit is one ranked search result after dedup.
type Hit struct {
	ChunkID    int64   `json:"chunk_id"`
	ContentID  int64   `json:"content_id"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Tags       string  `json:"tags"`
}

const overFetchFactor = 4
const hardMaxFetch = 1000

// Search runs a vector similarity query, joins hits back to their content
// rows, optionally filters by tag intersection, deduplicates by URL
// (keeping the best similarity), and returns up to limit rows ranked
// descending by similarity.
func (e *Engine) Search(ctx context.Context, queryVector []float32, limit int, tagFilter []string) ([]Hit, error) {
	k := limit * overFetchFactor
	if k > hardMaxFetch {
		k = hardMaxFetch
	}
	if k < limit {
		k = limit
	}

	blob, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	rows, err := e.writer().QueryContext(ctx, `
		SELECT rowid, content_id, distance
		FROM content_vectors
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	type rawHit struct {
		chunkID   int64
		contentID int64
		distance  float64
	}
	var raw []rawHit
	for rows.Next() {
		var h rawHit
		if err := rows.Scan(&h.chunkID, &h.contentID, &h.distance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		raw = append(raw, h)
	}
	rows.Close()

	bestByURL := make(map[string]Hit)
	for _, h := range raw {
		chunkText, contentRow, ok, err := e.loadHitContext(ctx, h.chunkID, h.contentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // content deleted concurrently
		}

		if len(tagFilter) > 0 && !tagsIntersect(contentRow.Tags, tagFilter) {
			continue
		}

		similarity := distanceToSimilarity(h.distance)
		existing, seen := bestByURL[contentRow.URL]
		if seen && existing.Similarity >= similarity {
			continue
		}
		bestByURL[contentRow.URL] = Hit{
			ChunkID:    h.chunkID,
			ContentID:  h.contentID,
			URL:        contentRow.URL,
			Title:      contentRow.Title,
			Text:       chunkText,
			Similarity: similarity,
			Tags:       contentRow.Tags,
		}
	}

	out := make([]Hit, 0, len(bestByURL))
	for _, h := range bestByURL {
		out = append(out, h)
	}
	sortHitsDescending(out)

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Engine) loadHitContext(ctx context.Context, chunkID, contentID int64) (chunkText string, row ContentRow, ok bool, err error) {
	err = e.writer().QueryRowContext(ctx, "SELECT text FROM content_chunks WHERE id = ?", chunkID).Scan(&chunkText)
	if err == sql.ErrNoRows {
		return "", ContentRow{}, false, nil
	}
	if err != nil {
		return "", ContentRow{}, false, fmt.Errorf("load chunk text: %w", err)
	}

	err = e.writer().QueryRowContext(ctx,
		"SELECT id, url, title, tags FROM crawled_content WHERE id = ?", contentID,
	).Scan(&row.ID, &row.URL, &row.Title, &row.Tags)
	if err == sql.ErrNoRows {
		return "", ContentRow{}, false, nil
	}
	if err != nil {
		return "", ContentRow{}, false, fmt.Errorf("load content row: %w", err)
	}

	return chunkText, row, true, nil
}

// distanceToSimilarity converts an L2 distance (vec0's default metric) to a
// bounded similarity score where closer vectors score higher.
func distanceToSimilarity(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

func tagsIntersect(tagsCSV string, filter []string) bool {
	have := splitTags(tagsCSV)
	want := make(map[string]bool, len(filter))
	for _, t := range filter {
		want[t] = true
	}
	for _, t := range have {
		if want[t] {
			return true
		}
	}
	return false
}

func splitTags(csv string) []string {
	var out []string
	for _, raw := range strings.Split(csv, ",") {
		tag := strings.TrimSpace(raw)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func sortHitsDescending(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
}
