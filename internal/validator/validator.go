// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package validator provides pure, synchronous checks over every kind of
// input the ingestion and search paths accept. It never logs and never
// touches storage; callers are responsible for acting on a returned error.
package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Error is returned by every check in this package when an input is rejected.
// Field names the offending input, Reason is a short human-readable cause.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func newError(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

// Field-specific max lengths.
const (
	MaxURLLength         = 2048
	MaxQueryLength       = 1000
	MaxTagLength         = 100
	MaxTagsLength        = 500
	MaxPatternLength     = 200
	MaxDescriptionLength = 1000
	MaxTitleLength       = 500
)

var sqlVerbs = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "EXEC", "UNION", "JOIN", "MERGE",
}

var sqlFunctions = []string{
	"LOAD_FILE", "INTO OUTFILE", "SLEEP", "BENCHMARK", "WAITFOR DELAY",
}

var sqlCommentTokens = []string{"--", "/*", "*/", "#"}

var sqlTautologies = []string{"OR 1=1", "AND 1=1"}

var schemaIntrospectionNames = []string{
	"INFORMATION_SCHEMA", "SQLITE_MASTER", "PG_CATALOG", "SYS.TABLES",
}

var scriptFragments = []string{
	"<SCRIPT", "JAVASCRIPT:", "ONERROR=", "ONLOAD=",
}

var stackedQueryRe = regexp.MustCompile(`(?i);\s*(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|EXEC|UNION|MERGE)`)

var controlCharRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

var adultContentWords = []string{"porn", "xxx", "sex", "nude", "escort"}

var tagTokenRe = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// String rejects a value containing NUL/control characters, a fixed set of
// SQL/script injection fragments, or a value longer than maxLen. It returns
// the original value unchanged on success; the Validator never mutates
// input, only accepts or rejects it.
func String(field, value string, maxLen int) (string, error) {
	if len(value) > maxLen {
		return "", newError(field, fmt.Sprintf("exceeds max length %d", maxLen))
	}
	if containsControlChars(value) {
		return "", newError(field, "contains NUL or control characters")
	}
	if reason, bad := containsDangerousPattern(value); bad {
		return "", newError(field, reason)
	}
	return value, nil
}

func containsControlChars(value string) bool {
	return strings.ContainsRune(value, 0) || controlCharRe.MatchString(value)
}

func containsDangerousPattern(value string) (string, bool) {
	upper := strings.ToUpper(value)

	for _, verb := range sqlVerbs {
		if containsWholeWord(upper, verb) {
			return "contains SQL keyword " + verb, true
		}
	}
	for _, fn := range sqlFunctions {
		if strings.Contains(upper, fn) {
			return "contains SQL function " + fn, true
		}
	}
	for _, tok := range sqlCommentTokens {
		if strings.Contains(value, tok) {
			return "contains SQL comment/terminator sequence", true
		}
	}
	for _, taut := range sqlTautologies {
		if strings.Contains(upper, taut) {
			return "contains tautology pattern", true
		}
	}
	for _, name := range schemaIntrospectionNames {
		if strings.Contains(upper, name) {
			return "contains schema-introspection reference", true
		}
	}
	for _, frag := range scriptFragments {
		if strings.Contains(upper, frag) {
			return "contains script-injection fragment", true
		}
	}
	if stackedQueryRe.MatchString(value) {
		return "contains stacked query sequence", true
	}

	return "", false
}

// containsWholeWord reports whether upper contains word as a standalone
// token (not as a substring of a longer identifier).
func containsWholeWord(upper, word string) bool {
	idx := 0
	for {
		pos := strings.Index(upper[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(upper[start-1])
		afterOK := end == len(upper) || !isWordChar(upper[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// URL validates a candidate URL string: the general String checks, plus
// rejection of adult-content substrings, SQL verbs in the query string, and
// (if "://" is present) a well-formed scheme://host structure.
func URL(value string) (string, error) {
	clean, err := String("url", value, MaxURLLength)
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(clean)
	for _, word := range adultContentWords {
		if strings.Contains(lower, word) {
			return "", newError("url", "contains disallowed content keyword")
		}
	}

	if strings.Contains(clean, "://") {
		parsed, err := url.Parse(clean)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", newError("url", "malformed scheme://host structure")
		}
		if parsed.RawQuery != "" {
			upperQuery := strings.ToUpper(parsed.RawQuery)
			for _, verb := range sqlVerbs {
				if containsWholeWord(upperQuery, verb) {
					return "", newError("url", "query string contains SQL keyword "+verb)
				}
			}
		}
	}

	return clean, nil
}

// Int parses value as a base-10 integer and enforces it lies in [min, max].
func Int(field, value string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, newError(field, "not a valid integer")
	}
	if n < min || n > max {
		return 0, newError(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
	return n, nil
}

// Bool accepts true/1/yes/on and false/0/no/off, case-insensitively.
func Bool(field, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, newError(field, "not a recognized boolean")
	}
}

var validRetentions = map[string]bool{
	"permanent":    true,
	"session_only": true,
	"30_days":      true,
}

// Retention validates value against the fixed retention whitelist.
func Retention(value string) (string, error) {
	if !validRetentions[value] {
		return "", newError("retention", "must be one of permanent, session_only, 30_days")
	}
	return value, nil
}

// Tags splits value on commas and validates each element. Empty input
// yields an empty, non-nil slice.
func Tags(value string) ([]string, error) {
	if _, err := String("tags", value, MaxTagsLength); err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}, nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, raw := range parts {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		if len(tag) > MaxTagLength {
			return nil, newError("tags", "individual tag exceeds max length "+strconv.Itoa(MaxTagLength))
		}
		if !tagTokenRe.MatchString(tag) {
			return nil, newError("tags", "tag contains invalid characters: "+tag)
		}
		out = append(out, tag)
	}
	return out, nil
}

var exactHostRe = regexp.MustCompile(`^[A-Za-z0-9.\-]+$`)

// Pattern validates a block-pattern string: *.tld, *kw*, or a plain host,
// 2-200 characters.
func Pattern(value string) (string, error) {
	if len(value) < 2 || len(value) > MaxPatternLength {
		return "", newError("pattern", "must be between 2 and 200 characters")
	}
	if containsControlChars(value) {
		return "", newError("pattern", "contains control characters")
	}

	switch {
	case strings.HasPrefix(value, "*.") && len(value) > 2:
		return value, nil
	case strings.HasPrefix(value, "*") && strings.HasSuffix(value, "*") && len(value) > 2:
		return value, nil
	case exactHostRe.MatchString(value):
		return value, nil
	default:
		return "", newError("pattern", "must be *.tld, *kw*, or a plain host")
	}
}
