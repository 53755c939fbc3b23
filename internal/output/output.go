// Package output assigns collision-free output filenames and bundles
// converted documents for delivery.
package output

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResourceError is a local storage failure while writing or packaging
// output (disk full, permission denied).
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Assigner hands out unique output names. Names are fixed at
// file-selection time so completions resolve to a stable name no
// matter what order jobs finish in. Not safe for concurrent use; the
// whole batch is named before any worker starts.
type Assigner struct {
	used map[string]bool
}

// NewAssigner creates an empty name assigner. Each batch gets its own;
// nothing is shared across batches.
func NewAssigner() *Assigner {
	return &Assigner{used: make(map[string]bool)}
}

// Assign maps a source filename to a unique output name: the source
// extension is replaced with outputExt, and an " (k)" suffix with the
// smallest unused positive k resolves collisions.
func (a *Assigner) Assign(sourceName, outputExt string) string {
	base := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	if base == "" {
		base = "converted"
	}

	name := base + outputExt
	for k := 1; a.used[name]; k++ {
		name = fmt.Sprintf("%s (%d)%s", base, k, outputExt)
	}
	a.used[name] = true
	return name
}

// File is one named piece of converted output.
type File struct {
	Name    string
	Content []byte
}

// BuildArchive bundles every file into a single zip. Only successful
// conversions are handed in; failures stay in the manifest instead.
func BuildArchive(files []File) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	for _, f := range files {
		entry, err := w.Create(f.Name)
		if err != nil {
			w.Close()
			return nil, &ResourceError{Op: fmt.Sprintf("add %s to archive", f.Name), Err: err}
		}
		if _, err := entry.Write(f.Content); err != nil {
			w.Close()
			return nil, &ResourceError{Op: fmt.Sprintf("write %s into archive", f.Name), Err: err}
		}
	}

	if err := w.Close(); err != nil {
		return nil, &ResourceError{Op: "finalize archive", Err: err}
	}
	return buf.Bytes(), nil
}

// Sink receives finished output by name. Implementations decide where
// bytes land: a directory, an HTTP response, a test buffer.
type Sink interface {
	Save(name string, data []byte) error
}

// DirSink writes output files into a directory, creating it on first
// use.
type DirSink struct {
	Dir string
}

// Save writes one output file. Write failures surface as
// ResourceErrors so the caller can report storage problems distinctly
// from conversion problems.
func (s DirSink) Save(name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return &ResourceError{Op: fmt.Sprintf("create output directory %s", s.Dir), Err: err}
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ResourceError{Op: fmt.Sprintf("write %s", path), Err: err}
	}
	return nil
}
