// Package report persists batch results so runs can be inspected after
// the fact. Reports are written as YAML or Parquet, chosen by file
// extension.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/docprep/internal/batch"
	"github.com/lehigh-university-libraries/docprep/internal/options"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration section of the batch report
type Config struct {
	Backend      string `yaml:"backend"`
	OutputFormat string `yaml:"outputformat"`
	Concurrency  int    `yaml:"concurrency"`
	UseLLM       bool   `yaml:"usellm"`
	Timestamp    string `yaml:"timestamp"`
}

// Record represents a single file's outcome
type Record struct {
	Filename   string `yaml:"filename" parquet:"filename"`
	Status     string `yaml:"status" parquet:"status"`
	DurationMS int64  `yaml:"durationms" parquet:"duration_ms"`
	Error      string `yaml:"error,omitempty" parquet:"error,optional"`
}

// Report represents the complete batch report
type Report struct {
	Config  Config   `yaml:"config"`
	Records []Record `yaml:"records"`
}

// Build converts a finished manifest into a report.
func Build(backendName string, opts options.Options, concurrency int, m batch.Manifest) Report {
	r := Report{
		Config: Config{
			Backend:      backendName,
			OutputFormat: opts.OutputFormat,
			Concurrency:  concurrency,
			UseLLM:       opts.UseLLM,
			Timestamp:    time.Now().Format("2006-01-02_15-04-05"),
		},
		Records: make([]Record, 0, len(m.Outcomes)),
	}
	for _, outcome := range m.Outcomes {
		r.Records = append(r.Records, Record{
			Filename:   outcome.Filename,
			Status:     string(outcome.Status),
			DurationMS: outcome.Duration.Milliseconds(),
			Error:      outcome.Error,
		})
	}
	return r
}

// Save writes the report to path, choosing the encoding from the
// extension (.yaml, .yml or .parquet).
func (r Report) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return r.saveYAML(path)
	case ".parquet":
		return r.saveParquet(path)
	default:
		return fmt.Errorf("unsupported report format: %s (supported: .yaml, .parquet)", ext)
	}
}

func (r Report) saveYAML(path string) error {
	data, err := yaml.Marshal(&r)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %w", err)
	}
	slog.Debug("Report saved", "path", path, "records", len(r.Records))
	return nil
}

func (r Report) saveParquet(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Record](file)
	if _, err := writer.Write(r.Records); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	slog.Debug("Report saved", "path", path, "records", len(r.Records))
	return nil
}

// Load reads records back from a report file, detecting the format
// from the extension. YAML reports also restore the config section.
func Load(path string) (*Report, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".parquet":
		return loadParquet(path)
	default:
		return nil, fmt.Errorf("unsupported report format: %s (supported: .yaml, .parquet)", ext)
	}
}

func loadYAML(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &r, nil
}

func loadParquet(path string) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Record](pf)
	defer reader.Close()

	var records []Record
	rows := make([]Record, 128)
	for {
		n, err := reader.Read(rows)
		if n > 0 {
			records = append(records, rows[:n]...)
		}
		if err != nil {
			break
		}
	}

	return &Report{Records: records}, nil
}

// Summarize tallies record statuses for the report command.
func (r Report) Summarize() batch.Manifest {
	m := batch.Manifest{Total: len(r.Records)}
	for _, rec := range r.Records {
		switch batch.Status(rec.Status) {
		case batch.StatusCompleted:
			m.Completed++
		case batch.StatusCancelled:
			m.Cancelled++
		default:
			m.Failed++
		}
	}
	return m
}
