// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package blocklist stores wildcard URL/domain patterns that gate every
// ingestion. It is queried by the validator-adjacent pipeline step and
// mutated only by admin operations.
package blocklist

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Pattern is one persisted block rule.
type Pattern struct {
	Pattern     string    `json:"pattern"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Result reports whether a URL is blocked and, if so, by which pattern.
type Result struct {
	Blocked bool   `json:"blocked"`
	Pattern string `json:"pattern,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Store is the persisted set of block patterns.
type Store struct {
	db *sql.DB
}

var defaultPatterns = []Pattern{
	{Pattern: "*.ru", Description: "default block: .ru TLD"},
	{Pattern: "*.cn", Description: "default block: .cn TLD"},
	{Pattern: "*porn*", Description: "default block: adult content keyword"},
	{Pattern: "*sex*", Description: "default block: adult content keyword"},
}

// New creates the blocklist schema if needed and seeds the default pattern
// set on first initialization.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("blocklist: init schema: %w", err)
	}
	if err := s.seedDefaults(); err != nil {
		return nil, fmt.Errorf("blocklist: seed defaults: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS blocked_domains (
		pattern TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) seedDefaults() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM blocked_domains").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, p := range defaultPatterns {
		if _, err := s.db.Exec(
			"INSERT OR IGNORE INTO blocked_domains (pattern, description) VALUES (?, ?)",
			p.Pattern, p.Description,
		); err != nil {
			return err
		}
	}
	return nil
}

// List returns every stored pattern ordered by creation time.
func (s *Store) List() ([]Pattern, error) {
	rows, err := s.db.Query("SELECT pattern, description, created_at FROM blocked_domains ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("blocklist: list: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		if err := rows.Scan(&p.Pattern, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("blocklist: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ErrDuplicatePattern is returned by Add when the pattern already exists.
var ErrDuplicatePattern = fmt.Errorf("pattern already exists")

// Add inserts a new pattern, rejecting duplicates.
func (s *Store) Add(pattern, description string) error {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO blocked_domains (pattern, description) VALUES (?, ?)",
		pattern, description,
	)
	if err != nil {
		return fmt.Errorf("blocklist: add: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("blocklist: add: %w", err)
	}
	if n == 0 {
		return ErrDuplicatePattern
	}
	return nil
}

// ErrUnauthorized is returned by Remove when authToken does not match the
// configured removal token.
var ErrUnauthorized = fmt.Errorf("unauthorized: block removal token missing or mismatched")

// Remove deletes a pattern, authorized by comparing authToken against the
// process-wide removal token.
func (s *Store) Remove(pattern, authToken, configuredToken string) error {
	if configuredToken == "" || authToken != configuredToken {
		return ErrUnauthorized
	}
	_, err := s.db.Exec("DELETE FROM blocked_domains WHERE pattern = ?", pattern)
	if err != nil {
		return fmt.Errorf("blocklist: remove: %w", err)
	}
	return nil
}

// IsBlocked checks candidateURL against every stored pattern per the
// matching rules: *.tld matches domains ending in .tld, *kw* matches any
// URL containing kw, otherwise exact host match.
func (s *Store) IsBlocked(candidateURL string) (Result, error) {
	patterns, err := s.List()
	if err != nil {
		return Result{}, err
	}

	host := extractHost(candidateURL)
	lowerURL := strings.ToLower(candidateURL)

	for _, p := range patterns {
		if Matches(p.Pattern, candidateURL, host, lowerURL) {
			return Result{Blocked: true, Pattern: p.Pattern, Reason: p.Description}, nil
		}
	}
	return Result{Blocked: false}, nil
}

// Matches implements invariant 6's pattern matching rules in isolation so
// it can be unit tested without a database.
func Matches(pattern, rawURL, host, lowerURL string) bool {
	lowerPattern := strings.ToLower(pattern)

	switch {
	case strings.HasPrefix(lowerPattern, "*.") && !strings.HasSuffix(lowerPattern, "*"):
		suffix := lowerPattern[1:] // ".tld"
		return strings.HasSuffix(strings.ToLower(host), suffix)
	case strings.HasPrefix(lowerPattern, "*") && strings.HasSuffix(lowerPattern, "*"):
		kw := strings.Trim(lowerPattern, "*")
		return kw != "" && strings.Contains(lowerURL, kw)
	default:
		return strings.EqualFold(host, lowerPattern)
	}
}

func extractHost(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		return rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Hostname()
}
