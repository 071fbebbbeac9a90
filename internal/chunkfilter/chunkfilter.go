// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunkfilter drops navigation-heavy, link-heavy, or too-short
// chunks, with a safety floor so filtering never empties a non-empty
// sequence outright.
package chunkfilter

import (
	"strings"

	"github.com/northbound/crawlmemory/internal/chunker"
)

var navigationKeywords = []string{
	"navigation", "menu", "sidebar", "breadcrumb", "skip to",
	"table of contents", "on this page", "sign in", "log in",
	"subscribe", "follow us", "share on",
}

const safetyFloor = 3

// Filter removes low-quality chunks from chunks, applying the safety floor
// documented in the design notes: if filtering would drop everything but
// chunks is non-empty, keep the first up-to-3 raw chunks instead.
func Filter(chunks []chunker.Chunk) []chunker.Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	kept := make([]chunker.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if shouldKeep(c) {
			kept = append(kept, c)
		}
	}

	if len(kept) == 0 {
		floor := safetyFloor
		if floor > len(chunks) {
			floor = len(chunks)
		}
		return append([]chunker.Chunk{}, chunks[:floor]...)
	}

	return kept
}

func shouldKeep(c chunker.Chunk) bool {
	if c.WordCount < 10 {
		return false
	}

	lower := strings.ToLower(c.Text)
	navCount := 0
	for _, kw := range navigationKeywords {
		navCount += strings.Count(lower, kw)
	}
	if navCount >= 3 {
		return false
	}

	openBrackets := strings.Count(c.Text, "[")
	linkMarkers := strings.Count(c.Text, "](")

	if float64(openBrackets+linkMarkers)/float64(c.WordCount) > 0.3 {
		return false
	}
	if float64(openBrackets) > float64(c.WordCount)/3 {
		return false
	}

	return true
}
