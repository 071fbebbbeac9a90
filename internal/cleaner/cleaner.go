// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package cleaner turns raw markdown fetched for a URL into cleaned
// markdown suitable for chunking, reporting how much was stripped.
package cleaner

import (
	"regexp"
	"strings"
)

// Result is the output of Clean: the cleaned text plus reduction stats.
type Result struct {
	Cleaned         string
	OriginalLines   int
	CleanedLines    int
	ReductionRatio  float64
	NavigationCount int
	IsClean         bool
}

var navigationKeywords = []string{
	"navigation", "menu", "sidebar", "breadcrumb", "skip to",
	"table of contents", "on this page", "sign in", "log in",
	"subscribe", "follow us", "share on", "copyright ©",
	"all rights reserved", "privacy policy", "terms of service",
	"back to top",
}

var socialDomains = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "youtube.com", "tiktok.com", "pinterest.com",
}

var linkOnlyLineRe = regexp.MustCompile(`^[\s*\-]+\[.*?\]\s*\(.*?\)\s*$`)

var collapseNewlinesRe = regexp.MustCompile(`\n{3,}`)

// Clean strips navigation/social/link-only boilerplate lines from raw
// markdown and collapses runs of blank lines. sourceURL is accepted for
// symmetry with the fetch step but does not currently affect the output.
func Clean(raw, sourceURL string) Result {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	navCount := 0

	for _, line := range lines {
		lower := strings.ToLower(line)

		if containsAny(lower, navigationKeywords) {
			navCount++
			continue
		}
		if containsAny(lower, socialDomains) {
			continue
		}
		if linkOnlyLineRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	cleaned := collapseNewlinesRe.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")

	originalLines := len(lines)
	cleanedLines := len(kept)
	reduction := 0.0
	if originalLines > 0 {
		reduction = 1.0 - float64(cleanedLines)/float64(originalLines)
	}

	return Result{
		Cleaned:         cleaned,
		OriginalLines:   originalLines,
		CleanedLines:    cleanedLines,
		ReductionRatio:  reduction,
		NavigationCount: navCount,
		IsClean:         reduction <= 0.7 && navCount <= 10,
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
