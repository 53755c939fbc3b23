package options

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "valid defaults",
			opts: Default(),
		},
		{
			name: "html output",
			opts: Options{OutputFormat: FormatHTML, PageFormat: PageFormatNone},
		},
		{
			name:    "unknown output format",
			opts:    Options{OutputFormat: "docx", PageFormat: PageFormatNone},
			wantErr: true,
		},
		{
			name:    "unknown page format",
			opts:    Options{OutputFormat: FormatMarkdown, PageFormat: "fancy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClearsImageExtractionWithoutLLM(t *testing.T) {
	opts := Options{
		OutputFormat:           FormatMarkdown,
		PageFormat:             PageFormatNone,
		UseLLM:                 false,
		DisableImageExtraction: true,
	}

	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if opts.DisableImageExtraction {
		t.Error("Expected DisableImageExtraction to be cleared when UseLLM is false")
	}

	opts.UseLLM = true
	opts.DisableImageExtraction = true
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if !opts.DisableImageExtraction {
		t.Error("Expected DisableImageExtraction to be kept when UseLLM is true")
	}
}

func TestOutputExtension(t *testing.T) {
	tests := []struct {
		format   string
		expected string
	}{
		{FormatMarkdown, ".md"},
		{FormatJSON, ".json"},
		{FormatHTML, ".html"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got := Options{OutputFormat: tt.format}.OutputExtension()
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParsePageFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected PageFormat
		wantErr  bool
	}{
		{"none", PageFormatNone, false},
		{"", PageFormatNone, false},
		{"separators", PageFormatSeparators, false},
		{"NUMBERS", PageFormatNumbers, false},
		{"roman", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePageFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePageFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
