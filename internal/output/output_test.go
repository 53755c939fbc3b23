package output

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestAssignUniqueNames(t *testing.T) {
	a := NewAssigner()

	names := []string{
		a.Assign("report.pdf", ".md"),
		a.Assign("report.pdf", ".md"),
		a.Assign("report.pdf", ".md"),
		a.Assign("report.pdf", ".md"),
	}

	expected := []string{"report.md", "report (1).md", "report (2).md", "report (3).md"}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("Assignment %d: expected %s, got %s", i, want, names[i])
		}
	}
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		ext      string
		expected string
	}{
		{
			name:     "strips source extension",
			source:   "thesis.pdf",
			ext:      ".md",
			expected: "thesis.md",
		},
		{
			name:     "json extension",
			source:   "data.pdf",
			ext:      ".json",
			expected: "data.json",
		},
		{
			name:     "drops directory components",
			source:   "papers/2024/survey.pdf",
			ext:      ".md",
			expected: "survey.md",
		},
		{
			name:     "extensionless source",
			source:   "README",
			ext:      ".md",
			expected: "README.md",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAssigner().Assign(tt.source, tt.ext)
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestAssignTakenLiteralName(t *testing.T) {
	a := NewAssigner()

	// A source whose stem already carries a " (1)" must not collide
	// with the suffix scheme.
	first := a.Assign("report.pdf", ".md")
	second := a.Assign("report (1).pdf", ".md")
	third := a.Assign("report.pdf", ".md")

	if first != "report.md" || second != "report (1).md" {
		t.Fatalf("Unexpected names %s, %s", first, second)
	}
	if third != "report (2).md" {
		t.Errorf("Expected report (2).md, got %s", third)
	}
}

func TestBuildArchive(t *testing.T) {
	files := []File{
		{Name: "a.md", Content: []byte("# A")},
		{Name: "b.md", Content: []byte("# B")},
	}

	data, err := BuildArchive(files)
	if err != nil {
		t.Fatalf("BuildArchive() unexpected error: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}

	if len(r.File) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(r.File))
	}

	got := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open entry %s: %v", f.Name, err)
		}
		content, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(content)
	}

	if got["a.md"] != "# A" || got["b.md"] != "# B" {
		t.Errorf("Archive contents mismatch: %v", got)
	}
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	sink := DirSink{Dir: dir}

	if err := sink.Save("doc.md", []byte("# Hello")); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "doc.md"))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if string(data) != "# Hello" {
		t.Errorf("Expected saved content, got %q", data)
	}
}
