// Package batch runs many conversion jobs concurrently under a bounded
// worker pool, aggregating per-job outcomes into a manifest.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/convert"
	"github.com/lehigh-university-libraries/docprep/internal/options"
	"github.com/lehigh-university-libraries/docprep/internal/output"
)

// Status is a job's final outcome in the manifest.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome is one job's manifest record, keyed by the output name
// assigned at selection time rather than queue position.
type Outcome struct {
	Filename string
	Status   Status
	Duration time.Duration
	Error    string
}

// Manifest aggregates a batch's per-job outcomes. Snapshots handed to
// the progress callback are copies; mutating one has no effect on the
// batch.
type Manifest struct {
	Total      int
	Completed  int
	Failed     int
	Cancelled  int
	InProgress int
	Outcomes   []Outcome
}

func (m Manifest) snapshot() Manifest {
	out := m
	out.Outcomes = make([]Outcome, len(m.Outcomes))
	copy(out.Outcomes, m.Outcomes)
	return out
}

// Summary renders the user-facing result line.
func (m Manifest) Summary() string {
	s := fmt.Sprintf("%d/%d converted", m.Completed, m.Total)
	if m.Failed > 0 {
		s += fmt.Sprintf(", %d failed", m.Failed)
	}
	if m.Cancelled > 0 {
		s += fmt.Sprintf(", %d cancelled", m.Cancelled)
	}
	return s
}

// Result is a finished batch: the final manifest plus the successful
// outputs under their assigned names.
type Result struct {
	Manifest Manifest
	Files    []output.File
}

// Orchestrator drives one batch. Each instance owns its manifest and
// filename map; nothing is shared across batches.
type Orchestrator struct {
	Strategy    backend.Strategy
	Options     options.Options
	Credentials backend.Credentials
	Concurrency int
	JobConfig   convert.Config

	// OnUpdate receives a manifest snapshot after every aggregation
	// step. Optional.
	OnUpdate func(Manifest)

	// OnJobProgress receives per-job poll progress. Optional.
	OnJobProgress func(filename string, p convert.Progress)
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventFinished
)

type event struct {
	kind eventKind
	job  *convert.Job
}

// Run converts every file and returns the batch result once all
// workers have drained. The batch is an overall failure only when not
// a single job completed; individual failures are reported through the
// manifest. Cancelling ctx stops the batch: in-flight jobs abort to
// Cancelled and queued jobs never issue a network call.
func (o *Orchestrator) Run(ctx context.Context, files []backend.SourceFile) (*Result, error) {
	if len(files) == 0 {
		return nil, &convert.ValidationError{Reason: "no files to convert"}
	}

	workers := o.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	// Output names are fixed now, before any worker starts, so
	// completions in any order resolve to a stable unique name.
	assigner := output.NewAssigner()
	ext := o.Options.OutputExtension()
	jobs := make([]*convert.Job, 0, len(files))
	for _, f := range files {
		name := assigner.Assign(f.Name, ext)
		job := convert.New(f, name, o.Strategy, o.Options, o.Credentials, o.JobConfig, o.progressFunc(name))
		jobs = append(jobs, job)
	}

	slog.Info("Starting batch", "files", len(files), "workers", workers, "backend", o.Strategy.Name())

	// FIFO feed. The queue is pre-filled and closed so workers drain
	// it even after cancellation; a job dequeued under a cancelled ctx
	// transitions straight to Cancelled without touching the network.
	queue := make(chan *convert.Job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	events := make(chan event, 2*len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				events <- event{kind: eventStarted, job: job}
				job.Run(ctx)
				events <- event{kind: eventFinished, job: job}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	// Single aggregation point: the manifest is only ever touched
	// here, even though jobs finish concurrently.
	manifest := Manifest{Total: len(jobs)}
	var successes []output.File

	for ev := range events {
		switch ev.kind {
		case eventStarted:
			manifest.InProgress++
		case eventFinished:
			manifest.InProgress--
			outcome := o.record(&manifest, ev.job)
			if outcome.Status == StatusCompleted {
				successes = append(successes, output.File{
					Name:    ev.job.OutputName,
					Content: []byte(ev.job.Output()),
				})
			}
		}
		if o.OnUpdate != nil {
			o.OnUpdate(manifest.snapshot())
		}
	}

	result := &Result{Manifest: manifest, Files: successes}
	if manifest.Completed == 0 {
		return result, fmt.Errorf("no files were converted (%s)", manifest.Summary())
	}
	return result, nil
}

func (o *Orchestrator) record(m *Manifest, job *convert.Job) Outcome {
	outcome := Outcome{
		Filename: job.OutputName,
		Duration: job.Elapsed(),
	}

	switch job.State() {
	case convert.StateComplete:
		outcome.Status = StatusCompleted
		m.Completed++
		slog.Info("Conversion complete", "file", job.Source.Name, "output", job.OutputName, "duration", job.Elapsed())
	case convert.StateCancelled:
		outcome.Status = StatusCancelled
		m.Cancelled++
		slog.Info("Conversion cancelled", "file", job.Source.Name)
	default:
		outcome.Status = StatusFailed
		outcome.Error = convert.FailureMessage(job.Err())
		m.Failed++
		slog.Warn("Conversion failed", "file", job.Source.Name, "reason", outcome.Error)
	}

	m.Outcomes = append(m.Outcomes, outcome)
	return outcome
}

func (o *Orchestrator) progressFunc(name string) func(convert.Progress) {
	if o.OnJobProgress == nil {
		return nil
	}
	return func(p convert.Progress) {
		o.OnJobProgress(name, p)
	}
}
