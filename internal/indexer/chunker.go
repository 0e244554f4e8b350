// Package indexer splits documents into passages and loads them into retrieval indexes.
package indexer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidArgument is returned when the chunk size is not positive.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	paragraphSeparator = "\n\n"
	sentenceSeparator  = "."
	sentenceJoiner     = ". "
)

// Chunker splits text into passages of at most maxChars characters, preferring
// paragraph and then sentence boundaries.
type Chunker struct {
	maxChars int
}

// NewChunker creates a chunker with the given passage size limit (in characters).
func NewChunker(maxChars int) *Chunker {
	return &Chunker{maxChars: maxChars}
}

// MaxChars returns the passage size limit.
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

// Chunk splits text into passages. See ChunkText.
func (c *Chunker) Chunk(text string) ([]string, error) {
	return ChunkText(text, c.maxChars)
}

// ChunkText splits text into ordered passages of at most maxChars characters.
//
// Paragraphs (separated by a blank line) that fit are kept whole. Longer paragraphs are
// split on '.' and the sentences are packed greedily, joined by ". ". Anything still too
// long is cut into maxChars-sized slices. Empty text yields no passages.
func ChunkText(text string, maxChars int) ([]string, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalidArgument, maxChars)
	}
	if text == "" {
		return []string{}, nil
	}

	var chunks []string
	for _, para := range strings.Split(text, paragraphSeparator) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if charLen(para) <= maxChars {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, packSentences(para, maxChars)...)
	}

	out := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if charLen(ch) <= maxChars {
			out = append(out, ch)
			continue
		}
		out = append(out, hardSlice(ch, maxChars)...)
	}
	return out, nil
}

// packSentences greedily accumulates the sentences of para into passages.
func packSentences(para string, maxChars int) []string {
	para = strings.ReplaceAll(para, "\n", " ")
	var chunks []string
	current := ""
	for _, s := range strings.Split(para, sentenceSeparator) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		candidate := s
		if current != "" {
			candidate = strings.TrimSpace(current + sentenceJoiner + s)
		}
		if charLen(candidate) > maxChars && current != "" {
			chunks = append(chunks, current)
			current = s
		} else {
			current = candidate
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// hardSlice cuts s into consecutive slices of maxChars characters. Slices holding
// only whitespace are dropped.
func hardSlice(s string, maxChars int) []string {
	runes := []rune(s)
	slices := make([]string, 0, len(runes)/maxChars+1)
	for start := 0; start < len(runes); start += maxChars {
		end := min(start+maxChars, len(runes))
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) == "" {
			continue
		}
		slices = append(slices, piece)
	}
	return slices
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
