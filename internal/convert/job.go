// Package convert drives one document through its submit-then-poll
// lifecycle against a conversion backend.
package convert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/normalize"
	"github.com/lehigh-university-libraries/docprep/internal/options"
	"github.com/lehigh-university-libraries/docprep/internal/retry"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateCreated      State = "created"
	StateSubmitting   State = "submitting"
	StateInitialDelay State = "initial_delay"
	StatePolling      State = "polling"
	StateComplete     State = "complete"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether the state is one a job never leaves.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Progress is one status observation reported while a job is polling.
type Progress struct {
	Status  backend.Status
	Attempt int
	Elapsed time.Duration
}

// Config bounds a job's network behavior. CallTimeout is the short
// per-call deadline; MaxPollAttempts is the long per-job budget. The
// two are independent: exceeding either fails the job, neither cancels
// it.
type Config struct {
	CallTimeout      time.Duration
	PropagationDelay time.Duration
	PollInterval     time.Duration
	MaxPollAttempts  int
	Retry            retry.Policy
}

// DefaultConfig returns the bounds used in production.
func DefaultConfig() Config {
	return Config{
		CallTimeout:      60 * time.Second,
		PropagationDelay: 2 * time.Second,
		PollInterval:     2 * time.Second,
		MaxPollAttempts:  300,
		Retry:            retry.Default(),
	}
}

// Job is the state machine for a single document conversion. A job is
// owned by exactly one worker; nothing else mutates it, and its result
// is read only after it reaches a terminal state.
type Job struct {
	ID         uuid.UUID
	Source     backend.SourceFile
	OutputName string

	strategy   backend.Strategy
	opts       options.Options
	creds      backend.Credentials
	cfg        Config
	onProgress func(Progress)

	state        State
	checkToken   string
	pollAttempts int
	elapsed      time.Duration
	err          error
	output       string
}

// New creates a job in the Created state. outputName is the collision-
// free name assigned at file-selection time.
func New(source backend.SourceFile, outputName string, strategy backend.Strategy, opts options.Options, creds backend.Credentials, cfg Config, onProgress func(Progress)) *Job {
	return &Job{
		ID:         uuid.New(),
		Source:     source,
		OutputName: outputName,
		strategy:   strategy,
		opts:       opts,
		creds:      creds,
		cfg:        cfg,
		onProgress: onProgress,
		state:      StateCreated,
	}
}

// State returns the job's current state.
func (j *Job) State() State { return j.state }

// Output returns the converted text; meaningful only in StateComplete.
func (j *Job) Output() string { return j.output }

// Err returns the failure; meaningful only in StateFailed.
func (j *Job) Err() error { return j.err }

// Elapsed returns how long the job ran.
func (j *Job) Elapsed() time.Duration { return j.elapsed }

// PollAttempts returns the number of poll iterations performed.
func (j *Job) PollAttempts() int { return j.pollAttempts }

// Run drives the job to a terminal state. Cancellation is observed
// before submit and at every sleep; the ctx is threaded into every
// network call so in-flight requests are aborted rather than awaited.
func (j *Job) Run(ctx context.Context) {
	start := time.Now()
	defer func() { j.elapsed = time.Since(start) }()

	if err := ValidateSource(j.Source.Name, int64(len(j.Source.Data))); err != nil {
		j.fail(err)
		return
	}
	if err := ValidateRequest(j.strategy, j.opts, j.creds); err != nil {
		j.fail(err)
		return
	}

	if ctx.Err() != nil {
		j.state = StateCancelled
		return
	}

	j.state = StateSubmitting
	var receipt *backend.SubmitReceipt
	err := j.cfg.Retry.Execute(ctx, func(ctx context.Context) error {
		r, err := j.strategy.Submit(ctx, j.Source, j.wireOptions(), j.creds)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	}, Transient, j.logRetry("submit"))
	if err != nil {
		j.terminal(ctx, err)
		return
	}
	j.checkToken = receipt.CheckToken

	if j.strategy.NeedsInitialPropagationDelay() && j.cfg.PropagationDelay > 0 {
		j.state = StateInitialDelay
		if !sleep(ctx, j.cfg.PropagationDelay) {
			j.state = StateCancelled
			return
		}
	}

	j.state = StatePolling
	for attempt := 1; attempt <= j.cfg.MaxPollAttempts; attempt++ {
		j.pollAttempts = attempt

		var result *backend.PollResult
		err := j.cfg.Retry.Execute(ctx, func(ctx context.Context) error {
			r, err := j.strategy.Poll(ctx, j.checkToken, j.creds)
			if err != nil {
				return err
			}
			result = r
			return nil
		}, Transient, j.logRetry("poll"))
		if err != nil {
			j.terminal(ctx, err)
			return
		}

		switch result.Status {
		case backend.StatusComplete:
			// A complete status with no output payload is a backend
			// bug, never a success.
			if result.Output == "" {
				j.fail(&backend.MalformedResponseError{Reason: "complete status without output"})
				return
			}
			j.output = j.finishOutput(result.Output)
			j.state = StateComplete
			return

		case backend.StatusError:
			msg := result.Message
			if msg == "" {
				msg = "the backend reported a conversion failure"
			}
			j.fail(&backend.ServiceError{Message: msg})
			return

		default:
			if j.onProgress != nil {
				j.onProgress(Progress{Status: result.Status, Attempt: attempt, Elapsed: time.Since(start)})
			}
			if !sleep(ctx, j.cfg.PollInterval) {
				j.state = StateCancelled
				return
			}
		}
	}

	j.fail(ErrPollBudgetExceeded)
}

// finishOutput applies the page marker normalization to completed
// markdown output. Structured formats pass through untouched.
func (j *Job) finishOutput(text string) string {
	if j.opts.OutputFormat == options.FormatMarkdown {
		return normalize.PageMarkers(text, j.opts.PageFormat)
	}
	return text
}

// terminal records a post-submit failure, distinguishing cancellation
// (which is not a failure) from everything else.
func (j *Job) terminal(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		j.state = StateCancelled
		return
	}
	j.fail(err)
}

func (j *Job) fail(err error) {
	j.err = err
	j.state = StateFailed
}

func (j *Job) logRetry(op string) func(int, error) {
	return func(attempt int, err error) {
		slog.Debug("Retrying backend call", "file", j.Source.Name, "op", op, "attempt", attempt, "error", err)
	}
}

func (j *Job) wireOptions() backend.Options {
	return backend.Options{
		OutputFormat:           j.opts.OutputFormat,
		Langs:                  j.opts.Langs,
		Paginate:               j.opts.Paginate,
		FormatLines:            j.opts.FormatLines,
		UseLLM:                 j.opts.UseLLM,
		DisableImageExtraction: j.opts.DisableImageExtraction,
		RedoInlineMath:         j.opts.RedoInlineMath,
	}
}

// sleep waits for d or until ctx is cancelled. It returns false when
// the wait was interrupted. The token is re-checked immediately before
// waiting so a cancellation between suspension points is not missed.
func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
