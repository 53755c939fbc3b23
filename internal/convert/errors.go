package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/netcall"
	"github.com/lehigh-university-libraries/docprep/internal/options"
)

// MaxFileSize is the largest document accepted for submission,
// matching the backend's upload cap.
const MaxFileSize = 200 * 1024 * 1024

// ErrPollBudgetExceeded means a conversion stayed pending past the
// maximum poll attempt count. Distinct from a transport timeout: the
// service kept answering, it just never finished.
var ErrPollBudgetExceeded = errors.New("conversion did not finish within the poll attempt budget")

// ValidationError rejects bad input before any network I/O.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ValidateSource checks a document's shape before submission.
func ValidateSource(name string, size int64) error {
	if strings.ToLower(filepath.Ext(name)) != ".pdf" {
		return &ValidationError{Reason: fmt.Sprintf("%s: only PDF files are supported", name)}
	}
	if size == 0 {
		return &ValidationError{Reason: fmt.Sprintf("%s: file is empty", name)}
	}
	if size > MaxFileSize {
		return &ValidationError{Reason: fmt.Sprintf("%s: file exceeds the maximum size of %d MB", name, MaxFileSize/(1024*1024))}
	}
	return nil
}

// ValidateRequest checks that the options and credentials together make
// a submittable request for the chosen backend.
func ValidateRequest(strategy backend.Strategy, opts options.Options, creds backend.Credentials) error {
	switch strategy.Name() {
	case "datalab":
		if creds.APIKey == "" {
			return &ValidationError{Reason: "a Datalab API key is required (set --api-key or DATALAB_API_KEY)"}
		}
	case "selfhosted":
		if opts.UseLLM && creds.GeminiKey == "" {
			return &ValidationError{Reason: "a Gemini API key is required when LLM enhancement is enabled (set --gemini-key or GEMINI_API_KEY)"}
		}
	}
	return nil
}

// Transient reports whether an error is worth retrying: connection
// resets and refusals, name-resolution failures, request timeouts, and
// HTTP 408/429/5xx. Everything else, cancellation included, is
// permanent.
func Transient(err error) bool {
	var ne *netcall.Error
	if errors.As(err, &ne) {
		switch ne.Kind {
		case netcall.KindTimeout, netcall.KindConnection, netcall.KindDNS:
			return true
		default:
			return false
		}
	}

	var se *backend.ServiceError
	if errors.As(err, &se) {
		return se.StatusCode == 408 || se.StatusCode == 429 || se.StatusCode >= 500
	}

	return false
}

// FailureMessage maps an internal error to the short, actionable text
// recorded in the manifest and shown to the user. Raw internal error
// objects never surface directly.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}

	var ne *netcall.Error
	if errors.As(err, &ne) {
		switch ne.Kind {
		case netcall.KindTimeout:
			return "the request to the conversion service timed out"
		case netcall.KindConnection:
			return "could not connect to the conversion service"
		case netcall.KindDNS:
			return "could not resolve the conversion service hostname"
		default:
			return "a network error occurred while contacting the conversion service"
		}
	}

	var se *backend.ServiceError
	if errors.As(err, &se) {
		return se.Message
	}

	var me *backend.MalformedResponseError
	if errors.As(err, &me) {
		return "the conversion service returned an unexpected response"
	}

	if errors.Is(err, ErrPollBudgetExceeded) {
		return ErrPollBudgetExceeded.Error()
	}

	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	return "conversion failed"
}
