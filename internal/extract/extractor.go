// Package extract turns reference documents into plain text. Paragraph breaks are kept as
// blank lines so the chunker can split on them.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for extensions with no registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Func extracts text from the raw bytes of one document.
type Func func(content []byte) (string, error)

// Extractor dispatches on file extension to a registered Func.
type Extractor struct {
	funcs       map[string]Func
	maxFileSize int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxFileSize rejects files larger than n bytes. 0 means no limit.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) { e.maxFileSize = n }
}

// WithFormat registers fn for ext (with or without the leading dot), replacing any default.
func WithFormat(ext string, fn Func) Option {
	return func(e *Extractor) { e.funcs[normalizeExt(ext)] = fn }
}

// NewExtractor returns an Extractor for plain text, PDF, OOXML (docx, xlsx, pptx)
// and OpenDocument (odt, ods, odp) files.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{funcs: map[string]Func{
		".txt":  extractPlain,
		".md":   extractPlain,
		".rst":  extractPlain,
		".pdf":  extractPDF,
		".docx": extractDOCX,
		".xlsx": extractExcel,
		".pptx": extractPPTX,
		".odt":  extractOpenDocument,
		".ods":  extractOpenDocument,
		".odp":  extractOpenDocument,
	}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether ext has an extractor.
func (e *Extractor) Supported(ext string) bool {
	_, ok := e.funcs[normalizeExt(ext)]
	return ok
}

// Extensions returns the supported extensions, sorted, with leading dots.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.funcs))
	for ext := range e.funcs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	if !e.Supported(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if e.maxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat file: %w", err)
		}
		if info.Size() > e.maxFileSize {
			return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), e.maxFileSize)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content as a document of type ext (e.g. ".pdf").
// An empty extension is treated as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = normalizeExt(ext)
	if ext == "" {
		return extractPlain(content)
	}
	fn, ok := e.funcs[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if e.maxFileSize > 0 && int64(len(content)) > e.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(content), e.maxFileSize)
	}
	return fn(content)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// joinParagraphs trims each paragraph, drops empty ones and joins the rest with a blank line.
func joinParagraphs(paras []string) string {
	kept := paras[:0]
	for _, p := range paras {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
