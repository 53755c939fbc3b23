package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/convert"
	"github.com/lehigh-university-libraries/docprep/internal/models"
	"github.com/lehigh-university-libraries/docprep/internal/netcall"
	"github.com/lehigh-university-libraries/docprep/internal/storage"
)

// Config carries the server-wide conversion settings. Per-request form
// fields select the backend and output options; credentials and tuning
// come from here.
type Config struct {
	Credentials backend.Credentials
	Concurrency int
	JobConfig   convert.Config

	// NewStrategy builds the backend for a request. Tests swap this
	// out; the default wires the real Datalab and self-hosted clients.
	NewStrategy func(name, serverURL string) (backend.Strategy, error)
}

type Handler struct {
	cfg          Config
	sessionStore *storage.SessionStore

	mu      sync.Mutex
	batches map[string]*runningBatch
}

// runningBatch tracks server-side state the JSON session omits: the
// cancel hook while the batch runs and the archive bytes once done.
type runningBatch struct {
	cancel  context.CancelFunc
	archive []byte
}

func New(cfg Config) *Handler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.JobConfig.CallTimeout == 0 {
		cfg.JobConfig = convert.DefaultConfig()
	}
	if cfg.NewStrategy == nil {
		caller := netcall.New(cfg.JobConfig.CallTimeout)
		cfg.NewStrategy = func(name, serverURL string) (backend.Strategy, error) {
			return backend.ForName(name, serverURL, caller)
		}
	}
	return &Handler{
		cfg:          cfg,
		sessionStore: storage.New(),
		batches:      make(map[string]*runningBatch),
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*models.BatchSession, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Batch not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) trackBatch(id string, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches[id] = &runningBatch{cancel: cancel}
}

func (h *Handler) finishBatch(id string, archive []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.batches[id]; ok {
		b.cancel = nil
		b.archive = archive
	}
}

func (h *Handler) cancelBatch(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.batches[id]
	if !ok || b.cancel == nil {
		return false
	}
	b.cancel()
	b.cancel = nil
	return true
}

func (h *Handler) batchArchive(id string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.batches[id]
	if !ok || b.archive == nil {
		return nil, false
	}
	return b.archive, true
}

// HandleHealthcheck reports server liveness.
func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status": "online",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
