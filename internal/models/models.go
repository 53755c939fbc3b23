package models

import (
	"time"

	"github.com/lehigh-university-libraries/docprep/internal/batch"
)

// Batch session lifecycle states.
const (
	BatchRunning   = "running"
	BatchDone      = "done"
	BatchCancelled = "cancelled"
)

// BatchSession represents a conversion batch started over the API
type BatchSession struct {
	ID         string        `json:"id"`
	Backend    string        `json:"backend"`
	State      string        `json:"state"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Cancelled  int           `json:"cancelled"`
	InProgress int           `json:"in_progress"`
	Outcomes   []OutcomeItem `json:"outcomes"`
	CreatedAt  time.Time     `json:"created_at"`
}

// OutcomeItem represents one file's result within a batch
type OutcomeItem struct {
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ApplyManifest copies a manifest snapshot into the session.
func (s *BatchSession) ApplyManifest(m batch.Manifest) {
	s.Total = m.Total
	s.Completed = m.Completed
	s.Failed = m.Failed
	s.Cancelled = m.Cancelled
	s.InProgress = m.InProgress
	s.Outcomes = make([]OutcomeItem, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		s.Outcomes = append(s.Outcomes, OutcomeItem{
			Filename:   o.Filename,
			Status:     string(o.Status),
			DurationMS: o.Duration.Milliseconds(),
			Error:      o.Error,
		})
	}
}
