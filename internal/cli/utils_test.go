package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func sampleAnswer() *models.AskResponse {
	return &models.AskResponse{
		RequestID: "req-1",
		Question:  "why do cats purr?",
		Answer:    "Because they are content.",
		QueryTime: 42,
		Sources: []*models.Source{
			{Rank: 1, Text: "Cats purr when they are content.", Score: 0.91, SemanticScore: 0.91, DocumentID: "request"},
			{Rank: 2, Text: strings.Repeat("long passage ", 40), Score: 0.5, SemanticScore: 0.4, KeywordScore: 0.7, Title: "notes.txt"},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
	}{
		{"json", OutputJSON},
		{" JSON ", OutputJSON},
		{"text", OutputText},
		{"", OutputText},
		{"yaml", OutputText},
	}
	for _, tt := range tests {
		if got := ParseOutputFormat(tt.in); got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	response := sampleAnswer()
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, response, OutputJSON, true); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.AskResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Answer != response.Answer || decoded.QueryTime != 42 || len(decoded.Sources) != 2 {
		t.Errorf("unexpected decoded response %+v", decoded)
	}
}

func TestWriteAnswer_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText, true); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Because they are content.", "Sources (2, 42ms)", "Rank: 1 | Score: 0.9100", "Keyword: 0.7000", "Source: notes.txt", "..."} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer_textWithoutSources(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText, false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "Because they are content.\n" {
		t.Errorf("got %q", got)
	}
}

func TestWriteRetrieval_text(t *testing.T) {
	a := sampleAnswer()
	response := &models.RetrieveResponse{Question: a.Question, Sources: a.Sources, Chunks: 7, QueryTime: 3}
	var buf bytes.Buffer
	if err := WriteRetrieval(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Found 2 of 7 passages in 3ms") {
		t.Errorf("missing summary:\n%s", out)
	}
	// Retrieval output is never truncated.
	if !strings.Contains(out, strings.TrimSpace(strings.Repeat("long passage ", 40))) {
		t.Errorf("passage was truncated:\n%s", out)
	}
}

func TestWriteRetrieval_JSON(t *testing.T) {
	response := &models.RetrieveResponse{Question: "q", Context: "ctx", Sources: []*models.Source{}}
	var buf bytes.Buffer
	if err := WriteRetrieval(&buf, response, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["context"] != "ctx" {
		t.Errorf("context: got %v", decoded["context"])
	}
}

func TestWriteChunks(t *testing.T) {
	response := &models.ChunkResponse{Chunks: []string{"First.", "Zweite Übung."}, Count: 2}
	var buf bytes.Buffer
	if err := WriteChunks(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"[1] (6 chars)\nFirst.", "[2] (13 chars)", "2 chunks"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteChunks(&buf, response, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"count": 2`) {
		t.Errorf("json output: %s", buf.String())
	}
}
