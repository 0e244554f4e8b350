package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

const (
	msgAskFailed      = "Failed to generate answer"
	msgRetrieveFailed = "Failed to retrieve context"
	msgNoLibrary      = "library not enabled"
)

type noteRequest struct {
	Text  string `json:"text"`
	Title string `json:"title,omitempty"`
}

type libraryDocument struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Characters int       `json:"characters"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// handleAsk serves the extension's endpoint: any failure other than bad input is a 500.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, false)
}

func (s *Server) handleAskV1(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, true)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, codedStatus bool) {
	var req models.AskRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("ask request",
		zap.Int("question_chars", len(req.Question)),
		zap.Int("context_chars", len(req.Context)),
		zap.Bool("use_library", req.UseLibrary),
	)
	resp, err := s.service.Ask(r.Context(), &req)
	if err != nil {
		if apperr.IsInvalidInput(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("ask failed", zap.Error(err))
		status := http.StatusInternalServerError
		if codedStatus {
			status = apperr.HTTPStatus(err)
		}
		s.respondError(w, status, msgAskFailed)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.service.Retrieve(r.Context(), &req)
	if err != nil {
		if apperr.IsInvalidInput(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondError(w, apperr.HTTPStatus(err), msgRetrieveFailed)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	var req models.ChunkRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.service.Chunk(&req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	lib := s.service.Library()
	if lib == nil {
		s.respondError(w, http.StatusNotImplemented, msgNoLibrary)
		return
	}
	docs := lib.Documents()
	list := make([]libraryDocument, len(docs))
	for i, d := range docs {
		list[i] = libraryDocument{
			ID:         d.ID,
			Title:      d.Title,
			Characters: len([]rune(d.Content)),
			UpdatedAt:  d.UpdatedAt,
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     lib.Stats(),
		"documents": list,
	})
}

func (s *Server) handleLibraryReload(w http.ResponseWriter, r *http.Request) {
	lib := s.service.Library()
	if lib == nil {
		s.respondError(w, http.StatusNotImplemented, msgNoLibrary)
		return
	}
	n, err := lib.Reload(r.Context())
	if err != nil {
		s.logger.Error("library reload failed", zap.Error(err))
		s.respondError(w, apperr.HTTPStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "reloaded", "files": n})
}

// handleAddContext keeps the 200 the browser extension checks for.
func (s *Server) handleAddContext(w http.ResponseWriter, r *http.Request) {
	s.addNote(w, r, http.StatusOK)
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	s.addNote(w, r, http.StatusCreated)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request, status int) {
	lib := s.service.Library()
	if lib == nil {
		s.respondError(w, http.StatusNotImplemented, msgNoLibrary)
		return
	}
	var req noteRequest
	if !s.decode(w, r, &req) {
		return
	}
	doc, err := lib.AddNote(req.Title, req.Text)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.logger.Debug("note added", zap.String("id", doc.ID), zap.Int("chars", len(doc.Content)))
	s.respondJSON(w, status, map[string]string{"id": doc.ID, "status": "added"})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	lib := s.service.Library()
	if lib == nil {
		s.respondError(w, http.StatusNotImplemented, msgNoLibrary)
		return
	}
	id := chi.URLParam(r, "id")
	if err := lib.Remove(id); err != nil {
		s.respondError(w, apperr.HTTPStatus(err), "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	emb := s.service.Embedder()
	resp := map[string]interface{}{
		"version": s.version,
		"embedding": map[string]interface{}{
			"provider":   s.config.Embedding.Provider,
			"model":      emb.Model(),
			"dimensions": emb.Dimensions(),
		},
	}
	if gen := s.service.Generator(); gen != nil {
		resp["generation"] = map[string]interface{}{
			"provider": s.config.Generation.Provider,
			"model":    gen.Model(),
		}
	}

	// Add configuration info
	resp["retrieval"] = map[string]interface{}{
		"index_type": s.config.Retrieval.IndexType,
		"top_k":      s.config.Retrieval.TopK,
		"max_chars":  s.config.Retrieval.MaxChars,
		"min_score":  s.config.Retrieval.MinScoreOrDefault(),
		"hybrid":     s.config.Retrieval.Hybrid,
	}
	if cached, ok := emb.(*embedding.CachedEmbedder); ok {
		resp["cache"] = cached.Stats()
	}
	if path := s.config.Cache.DatabasePath; path != "" {
		if diskBytes, err := storage.DiskUsageBytes(storage.SQLiteFiles(path)...); err == nil {
			resp["cache_disk_usage_bytes"] = diskBytes
		}
	}
	if lib := s.service.Library(); lib != nil {
		resp["library"] = lib.Stats()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body of at most MaxBodyBytes into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
