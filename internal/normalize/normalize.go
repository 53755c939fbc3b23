// Package normalize applies a deterministic cleanup pass to converted
// output. Paginated conversions embed page boundary markers of the form
// {n}--- (three or more dashes); depending on the configured page
// format these are stripped or rendered as separators and headings.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/docprep/internal/options"
)

// markerPattern matches a page boundary marker: {n} followed by at
// least three dashes. Two dashes is not a marker and is left alone.
var markerPattern = regexp.MustCompile(`\{(\d+)\}-{3,}`)

// blankRunPattern matches a run of three or more newlines, which is
// collapsed to a single blank line after marker substitution.
var blankRunPattern = regexp.MustCompile(`\n{3,}`)

type marker struct {
	start, end int
	number     int
}

// PageMarkers normalizes page boundary markers in text according to the
// page format mode. The result is a pure function of its inputs:
// running it twice with mode none is a no-op.
func PageMarkers(text string, mode options.PageFormat) string {
	markers := scanMarkers(text)

	// Substitute in reverse document order so earlier offsets stay
	// valid while the string is rewritten.
	for i := len(markers) - 1; i >= 0; i-- {
		m := markers[i]
		text = text[:m.start] + renderMarker(m.number, mode) + text[m.end:]
	}

	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if mode == options.PageFormatNumbers && len(markers) > 0 {
		last := markers[len(markers)-1].number
		text += fmt.Sprintf("\n\nPage %d", last+1)
	}

	return text
}

// scanMarkers collects every marker's position and number before any
// mutation. Replacing while scanning could merge adjacent markers.
func scanMarkers(text string) []marker {
	idx := markerPattern.FindAllStringSubmatchIndex(text, -1)
	markers := make([]marker, 0, len(idx))
	for _, loc := range idx {
		n := 0
		fmt.Sscanf(text[loc[2]:loc[3]], "%d", &n)
		markers = append(markers, marker{start: loc[0], end: loc[1], number: n})
	}
	return markers
}

func renderMarker(n int, mode options.PageFormat) string {
	if mode == options.PageFormatNone {
		return ""
	}
	// The marker numbered 0 precedes the first page and carries no
	// boundary to render.
	if n == 0 {
		return ""
	}
	if mode == options.PageFormatNumbers {
		return fmt.Sprintf("\n\nPage %d\n\n---\n\n", n)
	}
	return "\n\n---\n\n"
}
