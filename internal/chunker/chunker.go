// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunker splits cleaned text into overlapping word-windowed
// chunks, each carrying exact character offsets into the source text.
package chunker

import "unicode"

const (
	// DefaultChunkSize is the window width in words.
	DefaultChunkSize = 500
	// DefaultOverlap is how many trailing words of one chunk reappear at
	// the start of the next.
	DefaultOverlap = 50
)

// Chunk is one word-windowed slice of a content row's cleaned text.
type Chunk struct {
	Index     int
	Text      string
	CharStart int
	CharEnd   int
	WordCount int
}

type word struct {
	start, end int
}

// Chunk splits text into DefaultChunkSize-word windows with
// DefaultOverlap-word overlap. Empty input yields an empty, non-nil slice.
func Chunk(text string) []Chunk {
	return ChunkWithSize(text, DefaultChunkSize, DefaultOverlap)
}

// ChunkWithSize is Chunk with an explicit size/overlap, used by tests to
// exercise boundary behavior without needing 500-word fixtures.
func ChunkWithSize(text string, size, overlap int) []Chunk {
	words := tokenize(text)
	if len(words) == 0 {
		return []Chunk{}
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	chunks := make([]Chunk, 0)
	index := 0
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}

		charStart := words[start].start
		charEnd := words[end-1].end

		chunks = append(chunks, Chunk{
			Index:     index,
			Text:      text[charStart:charEnd],
			CharStart: charStart,
			CharEnd:   charEnd,
			WordCount: end - start,
		})
		index++

		if end == len(words) {
			break
		}
	}

	return chunks
}

// tokenize finds the byte-offset span of every whitespace-delimited word
// in text, operating on runes so multi-byte characters keep correct
// offsets.
func tokenize(text string) []word {
	var words []word
	inWord := false
	start := 0

	runes := []rune(text)
	// Track byte offsets alongside rune iteration since char_start/char_end
	// are contract offsets into the original (byte) string.
	byteOffsets := make([]int, len(runes)+1)
	b := 0
	for i, r := range runes {
		byteOffsets[i] = b
		b += utf8RuneLen(r)
	}
	byteOffsets[len(runes)] = b

	for i, r := range runes {
		if unicode.IsSpace(r) {
			if inWord {
				words = append(words, word{start: byteOffsets[start], end: byteOffsets[i]})
				inWord = false
			}
			continue
		}
		if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		words = append(words, word{start: byteOffsets[start], end: byteOffsets[len(runes)]})
	}

	return words
}

func utf8RuneLen(r rune) int {
	switch {
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	default:
		return 4
	}
}
