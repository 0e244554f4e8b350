// Package cli provides CLI output helpers for Kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const separator = "─────────────────────────────────────────────────────────"

// ParseOutputFormat returns the format named by s. Anything but "json" is text.
func ParseOutputFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its sources to w in the given format.
func WriteAnswer(w io.Writer, response *models.AskResponse, format OutputFormat, showSources bool) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "%s\n", response.Answer)
	if showSources && len(response.Sources) > 0 {
		fmt.Fprintf(w, "\n--- Sources (%d, %dms) ---\n", len(response.Sources), response.QueryTime)
		for _, src := range response.Sources {
			writeSource(w, src, 200)
		}
	}
	return nil
}

// WriteRetrieval writes ranked passages to w in the given format.
func WriteRetrieval(w io.Writer, response *models.RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d of %d passages in %dms\n\n", len(response.Sources), response.Chunks, response.QueryTime)
	for _, src := range response.Sources {
		writeSource(w, src, 0)
	}
	return nil
}

// WriteChunks writes passages to w, one numbered block each in text format.
func WriteChunks(w io.Writer, response *models.ChunkResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	for i, chunk := range response.Chunks {
		fmt.Fprintf(w, "[%d] (%d chars)\n%s\n\n", i+1, len([]rune(chunk)), chunk)
	}
	fmt.Fprintf(w, "%d chunks\n", response.Count)
	return nil
}

func writeSource(w io.Writer, src *models.Source, maxLen int) {
	fmt.Fprintln(w, separator)
	if src.KeywordScore > 0 {
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
			src.Rank, src.Score, src.KeywordScore, src.SemanticScore)
	} else {
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", src.Rank, src.Score)
	}
	if src.Title != "" {
		fmt.Fprintf(w, "Source: %s\n", src.Title)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(src.Text, maxLen))
}
