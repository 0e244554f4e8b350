// Package library keeps reference documents in memory so they can be added to the context
// of every question. Documents come from watched directories and from posted notes.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Stats summarizes the library contents.
type Stats struct {
	Documents   int      `json:"documents"`
	Files       int      `json:"files"`
	Notes       int      `json:"notes"`
	Characters  int      `json:"characters"`
	Directories []string `json:"directories"`
	Watching    bool     `json:"watching"`
}

// Library is a concurrency-safe in-memory document store.
type Library struct {
	cfg       config.LibraryConfig
	extractor *extract.Extractor
	logger    *zap.Logger

	mu      sync.RWMutex
	docs    map[string]*models.Document
	watcher *watcher.Watcher
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the library's logger.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// New creates an empty library over cfg.Directories. Call Load to read the files.
func New(cfg config.LibraryConfig, extractor *extract.Extractor, opts ...Option) *Library {
	if extractor == nil {
		extractor = extract.NewExtractor(extract.WithMaxFileSize(cfg.MaxFileSize))
	}
	lib := &Library{
		cfg:       cfg,
		extractor: extractor,
		docs:      make(map[string]*models.Document),
	}
	for _, opt := range opts {
		opt(lib)
	}
	lib.logger = utils.LoggerOrNop(lib.logger)
	return lib
}

// Load reads every matching file under the configured directories and returns how many
// documents were loaded. Files that fail to extract are logged and skipped; a missing
// directory is an error. The file documents are replaced in one step, so readers see either
// the previous set or the new one. On error the previous set is kept. Notes are never touched.
func (l *Library) Load(ctx context.Context) (int, error) {
	files := make(map[string]*models.Document)
	for _, dir := range l.cfg.Directories {
		if err := l.loadDirectory(ctx, dir, files); err != nil {
			return 0, err
		}
	}

	l.mu.Lock()
	for id := range l.docs {
		if strings.HasPrefix(id, filePrefix) {
			delete(l.docs, id)
		}
	}
	for id, doc := range files {
		l.docs[id] = doc
	}
	l.mu.Unlock()

	l.logger.Info("library loaded", zap.Int("documents", len(files)), zap.Strings("directories", l.cfg.Directories))
	return len(files), nil
}

// Reload reads the directories again. See Load.
func (l *Library) Reload(ctx context.Context) (int, error) {
	return l.Load(ctx)
}

func (l *Library) loadDirectory(ctx context.Context, dir string, into map[string]*models.Document) error {
	info, err := os.Stat(dir)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeLibraryNotFound, "library directory not found", apperr.Field("path", dir))
	}
	if !info.IsDir() {
		return apperr.New(apperr.CodeLibraryNotFound, "library path is not a directory", apperr.Field("path", dir))
	}
	recursive := l.cfg.RecursiveOrDefault()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.accepts(path) {
			return nil
		}
		doc, err := l.readFile(path)
		if err != nil {
			l.logger.Warn("skipping library file", zap.String("path", path), zap.Error(err))
			return nil
		}
		if doc != nil {
			into[doc.ID] = doc
		}
		return nil
	})
}

func (l *Library) accepts(path string) bool {
	return watcher.MatchExtension(path, l.cfg.Extensions) && l.extractor.Supported(filepath.Ext(path))
}

// IndexFile extracts path and stores it, replacing any earlier version. A path that no
// longer exists is removed instead.
func (l *Library) IndexFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	doc, err := l.readFile(absPath)
	if err != nil {
		return err
	}
	if doc == nil {
		l.remove(FileDocID(absPath))
		return nil
	}
	l.mu.Lock()
	l.docs[doc.ID] = doc
	l.mu.Unlock()
	l.logger.Debug("library file indexed", zap.String("path", absPath), zap.Int("characters", len(doc.Content)))
	return nil
}

// readFile extracts path into a document. It returns nil and no error when path does not exist.
func (l *Library) readFile(path string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	text, err := l.extractor.Extract(absPath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeLibraryExtractFailure, "failed to extract document", apperr.Field("path", absPath))
	}
	return &models.Document{
		ID:      FileDocID(absPath),
		Title:   filepath.Base(absPath),
		Content: text,
		Metadata: map[string]interface{}{
			"path":  absPath,
			"size":  info.Size(),
			"mtime": info.ModTime().Unix(),
		},
		UpdatedAt: time.Now(),
	}, nil
}

// RemoveFile forgets the document loaded from path.
func (l *Library) RemoveFile(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	l.remove(FileDocID(absPath))
	l.logger.Debug("library file removed", zap.String("path", absPath))
}

// AddNote stores text as a new document and returns it. Blank text is rejected.
func (l *Library) AddNote(title, text string) (*models.Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.New(apperr.CodeServerRequestInvalid, "note text is required")
	}
	doc := &models.Document{
		ID:        NewNoteID(),
		Title:     title,
		Content:   text,
		UpdatedAt: time.Now(),
	}
	l.mu.Lock()
	l.docs[doc.ID] = doc
	l.mu.Unlock()
	return doc, nil
}

// Get returns the document with id.
func (l *Library) Get(id string) (*models.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[id]
	if !ok {
		return nil, apperr.New(apperr.CodeLibraryNotFound, "document not found", apperr.Field("id", id))
	}
	return doc, nil
}

// Remove deletes the document with id.
func (l *Library) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.docs[id]; !ok {
		return apperr.New(apperr.CodeLibraryNotFound, "document not found", apperr.Field("id", id))
	}
	delete(l.docs, id)
	return nil
}

func (l *Library) remove(id string) {
	l.mu.Lock()
	delete(l.docs, id)
	l.mu.Unlock()
}

// Documents returns every document ordered by ID, so retrieval over them is reproducible.
func (l *Library) Documents() []*models.Document {
	l.mu.RLock()
	docs := make([]*models.Document, 0, len(l.docs))
	for _, d := range l.docs {
		docs = append(docs, d)
	}
	l.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Len returns the number of documents.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

// Stats returns a summary of the library.
func (l *Library) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{
		Documents:   len(l.docs),
		Directories: append([]string(nil), l.cfg.Directories...),
		Watching:    l.watcher != nil,
	}
	for id, d := range l.docs {
		if strings.HasPrefix(id, notePrefix) {
			s.Notes++
		} else {
			s.Files++
		}
		s.Characters += len([]rune(d.Content))
	}
	return s
}

// FileChanged implements watcher.Handler.
func (l *Library) FileChanged(path string) {
	if !l.accepts(path) {
		return
	}
	if err := l.IndexFile(context.Background(), path); err != nil {
		l.logger.Warn("failed to refresh library file", zap.String("path", path), zap.Error(err))
	}
}

// FileRemoved implements watcher.Handler.
func (l *Library) FileRemoved(path string) {
	l.RemoveFile(path)
}

// Watch keeps the library in sync with its directories until ctx is done or Close is called.
func (l *Library) Watch(ctx context.Context) error {
	if len(l.cfg.Directories) == 0 {
		return nil
	}
	w := watcher.NewWatcher(l.cfg.Directories, l.cfg.Extensions, l.cfg.RecursiveOrDefault(), l, watcher.WithLogger(l.logger))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch library: %w", err)
	}
	l.mu.Lock()
	l.watcher = w
	l.mu.Unlock()
	return nil
}

// Close stops watching.
func (l *Library) Close() error {
	l.mu.Lock()
	w := l.watcher
	l.watcher = nil
	l.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}
