package options

import (
	"fmt"
	"os"
	"strings"
)

// PageFormat controls how page boundary markers in converted output are
// rendered by the normalizer.
type PageFormat string

const (
	// PageFormatNone strips page markers entirely.
	PageFormatNone PageFormat = "none"
	// PageFormatSeparators replaces markers with horizontal rules.
	PageFormatSeparators PageFormat = "separators"
	// PageFormatNumbers replaces markers with numbered page headings.
	PageFormatNumbers PageFormat = "numbers"
)

// Supported output formats, matching the backend's output_format values.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
)

// Options holds the conversion options shared by every file in a batch.
type Options struct {
	OutputFormat           string
	Langs                  string // comma-separated OCR language hints
	Paginate               bool
	PageFormat             PageFormat
	UseLLM                 bool
	DisableImageExtraction bool
	FormatLines            bool
	RedoInlineMath         bool
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		OutputFormat: FormatMarkdown,
		PageFormat:   PageFormatNone,
	}
}

// FromEnv fills unset fields from environment variables, mirroring how
// flags fall back to the environment elsewhere in the CLI.
func (o *Options) FromEnv() {
	if o.OutputFormat == "" {
		o.OutputFormat = os.Getenv("DOCPREP_OUTPUT_FORMAT")
	}
	if o.OutputFormat == "" {
		o.OutputFormat = FormatMarkdown
	}
	if o.Langs == "" {
		o.Langs = os.Getenv("DOCPREP_LANGS")
	}
	if o.PageFormat == "" {
		o.PageFormat = PageFormatNone
	}
}

// Validate checks enum fields and normalizes dependent flags.
// Disabling image extraction is only meaningful when LLM enhancement is
// enabled, so it is cleared otherwise rather than rejected.
func (o *Options) Validate() error {
	switch o.OutputFormat {
	case FormatMarkdown, FormatJSON, FormatHTML:
	default:
		return fmt.Errorf("unsupported output format %q (supported: markdown, json, html)", o.OutputFormat)
	}

	switch o.PageFormat {
	case PageFormatNone, PageFormatSeparators, PageFormatNumbers:
	default:
		return fmt.Errorf("unsupported page format %q (supported: none, separators, numbers)", o.PageFormat)
	}

	if !o.UseLLM {
		o.DisableImageExtraction = false
	}

	return nil
}

// OutputExtension returns the file extension for the configured output
// format, including the leading dot.
func (o Options) OutputExtension() string {
	switch o.OutputFormat {
	case FormatJSON:
		return ".json"
	case FormatHTML:
		return ".html"
	default:
		return ".md"
	}
}

// ParsePageFormat maps a user-supplied string to a PageFormat.
func ParsePageFormat(s string) (PageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PageFormatNone, nil
	case "separators":
		return PageFormatSeparators, nil
	case "numbers":
		return PageFormatNumbers, nil
	default:
		return "", fmt.Errorf("unsupported page format %q (supported: none, separators, numbers)", s)
	}
}
