package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/batch"
	"github.com/lehigh-university-libraries/docprep/internal/convert"
	"github.com/lehigh-university-libraries/docprep/internal/models"
	"github.com/lehigh-university-libraries/docprep/internal/options"
	"github.com/lehigh-university-libraries/docprep/internal/output"
)

func (h *Handler) HandleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		sessions := h.sessionStore.GetAll()
		sessionList := make([]*models.BatchSession, 0, len(sessions))
		for _, session := range sessions {
			sessionList = append(sessionList, session)
		}
		h.writeJSON(w, sessionList)
	case "POST":
		h.handleStartBatch(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := optionsFromForm(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	strategy, err := h.cfg.NewStrategy(r.FormValue("backend"), r.FormValue("server_url"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files, err := readUploads(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, f := range files {
		if err := convert.ValidateSource(f.Name, int64(len(f.Data))); err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	sessionID := uuid.NewString()
	session := &models.BatchSession{
		ID:        sessionID,
		Backend:   strategy.Name(),
		State:     models.BatchRunning,
		Total:     len(files),
		CreatedAt: time.Now(),
	}
	h.sessionStore.Set(sessionID, session)

	ctx, cancel := context.WithCancel(context.Background())
	h.trackBatch(sessionID, cancel)

	go h.runBatch(ctx, cancel, sessionID, strategy, opts, files)

	h.writeJSON(w, map[string]any{
		"session_id": sessionID,
		"message":    fmt.Sprintf("Batch started with %d files", len(files)),
		"files":      len(files),
	})
}

// runBatch owns the session record for the batch's lifetime; handlers
// only read snapshots out of the store.
func (h *Handler) runBatch(ctx context.Context, cancel context.CancelFunc, sessionID string, strategy backend.Strategy, opts options.Options, files []backend.SourceFile) {
	defer cancel()

	o := &batch.Orchestrator{
		Strategy:    strategy,
		Options:     opts,
		Credentials: h.cfg.Credentials,
		Concurrency: h.cfg.Concurrency,
		JobConfig:   h.cfg.JobConfig,
		OnUpdate: func(m batch.Manifest) {
			s := &models.BatchSession{
				ID:        sessionID,
				Backend:   strategy.Name(),
				State:     models.BatchRunning,
				CreatedAt: time.Now(),
			}
			if prev, ok := h.sessionStore.Get(sessionID); ok {
				s.CreatedAt = prev.CreatedAt
			}
			s.ApplyManifest(m)
			h.sessionStore.Set(sessionID, s)
		},
	}

	result, err := o.Run(ctx, files)
	if err != nil {
		slog.Warn("Batch finished without completions", "session_id", sessionID, "error", err)
	}

	final := &models.BatchSession{
		ID:        sessionID,
		Backend:   strategy.Name(),
		State:     models.BatchDone,
		CreatedAt: time.Now(),
	}
	if prev, ok := h.sessionStore.Get(sessionID); ok {
		final.CreatedAt = prev.CreatedAt
	}
	final.ApplyManifest(result.Manifest)
	if result.Manifest.Cancelled > 0 && result.Manifest.Completed == 0 {
		final.State = models.BatchCancelled
	}
	h.sessionStore.Set(sessionID, final)

	var archive []byte
	if len(result.Files) > 0 {
		archive, err = output.BuildArchive(result.Files)
		if err != nil {
			slog.Error("Failed to build archive", "session_id", sessionID, "error", err)
			archive = nil
		}
	}
	h.finishBatch(sessionID, archive)
	slog.Info("Batch finished", "session_id", sessionID, "summary", result.Manifest.Summary())
}

func (h *Handler) HandleBatchDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	sessionID, sub, _ := strings.Cut(rest, "/")

	session, ok := h.getSessionOrError(w, sessionID)
	if !ok {
		return
	}

	if sub == "archive" {
		h.handleArchive(w, r, session)
		return
	}
	if sub != "" {
		h.writeError(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		h.writeJSON(w, session)
	case "DELETE":
		if h.cancelBatch(sessionID) {
			h.writeJSON(w, map[string]any{"session_id": sessionID, "message": "Batch cancelled"})
			return
		}
		h.writeError(w, "Batch is not running", http.StatusConflict)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request, session *models.BatchSession) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if session.State == models.BatchRunning {
		h.writeError(w, "Batch is still running", http.StatusConflict)
		return
	}
	archive, ok := h.batchArchive(session.ID)
	if !ok {
		h.writeError(w, "No converted files for this batch", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.ID+".zip"))
	if _, err := w.Write(archive); err != nil {
		slog.Error("Failed to write archive response", "session_id", session.ID, "error", err)
	}
}

func optionsFromForm(r *http.Request) (options.Options, error) {
	opts := options.Default()
	if v := r.FormValue("output_format"); v != "" {
		opts.OutputFormat = v
	}
	pageFormat, err := options.ParsePageFormat(r.FormValue("page_format"))
	if err != nil {
		return opts, err
	}
	opts.PageFormat = pageFormat
	opts.Langs = r.FormValue("langs")
	opts.Paginate = formBool(r, "paginate")
	opts.UseLLM = formBool(r, "use_llm")
	opts.FormatLines = formBool(r, "format_lines")
	opts.RedoInlineMath = formBool(r, "redo_inline_math")
	opts.DisableImageExtraction = formBool(r, "disable_image_extraction")
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func formBool(r *http.Request, field string) bool {
	switch strings.ToLower(r.FormValue(field)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func readUploads(r *http.Request) ([]backend.SourceFile, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		return nil, fmt.Errorf("no files uploaded (use the 'files' field)")
	}

	var files []backend.SourceFile
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, convert.MaxFileSize+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %s: %w", header.Filename, err)
		}
		files = append(files, backend.SourceFile{Name: header.Filename, Data: data})
	}
	return files, nil
}
