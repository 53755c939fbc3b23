// Package backend abstracts the remote Marker conversion services
// behind one submit/poll contract. Two wire variants exist: the Datalab
// cloud API and a self-hosted marker server (local, HuggingFace Space,
// or Modal deployment).
package backend

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/docprep/internal/netcall"
)

// Status is a backend-reported conversion state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// SourceFile is one document to convert.
type SourceFile struct {
	Name string
	Data []byte
}

// Credentials carries the secrets a strategy may need. Which field is
// used depends on the variant: Datalab authenticates with APIKey in a
// header, the self-hosted server forwards GeminiKey as a form field for
// LLM-enhanced conversion.
type Credentials struct {
	APIKey    string
	GeminiKey string
}

// SubmitReceipt is returned by a successful submit. CheckToken is the
// opaque handle later passed to Poll; its shape is variant-specific (a
// full check URL for Datalab, a request ID for self-hosted servers).
type SubmitReceipt struct {
	CheckToken string
}

// PollResult is one status observation for a submitted conversion.
type PollResult struct {
	Status   Status
	Progress float64 // 0 when the backend reports none
	Output   string  // converted text, only meaningful on StatusComplete
	Message  string  // backend-reported failure reason on StatusError
}

// Options is the subset of conversion options encoded on the wire. It
// mirrors the backend form fields one to one.
type Options struct {
	OutputFormat           string
	Langs                  string
	Paginate               bool
	FormatLines            bool
	UseLLM                 bool
	DisableImageExtraction bool
	RedoInlineMath         bool
}

// Strategy is the submit/poll contract every backend variant satisfies.
type Strategy interface {
	// Name identifies the variant in logs and reports.
	Name() string

	// Submit uploads the file and returns a check token for polling.
	Submit(ctx context.Context, file SourceFile, opts Options, creds Credentials) (*SubmitReceipt, error)

	// Poll reports the current state of a submitted conversion.
	Poll(ctx context.Context, checkToken string, creds Credentials) (*PollResult, error)

	// NeedsInitialPropagationDelay reports whether the backend requires
	// a grace period after submit before the first poll is meaningful.
	NeedsInitialPropagationDelay() bool

	// Health checks that the backend is reachable and reports itself
	// online.
	Health(ctx context.Context) error
}

// ForName returns the strategy for a backend name. serverURL overrides
// the default Datalab submit URL and is required for the self-hosted
// variant, which has no default deployment.
func ForName(name, serverURL string, caller *netcall.Caller) (Strategy, error) {
	switch name {
	case "datalab", "":
		return NewDatalab(serverURL, caller), nil
	case "selfhosted":
		if serverURL == "" {
			return nil, fmt.Errorf("selfhosted backend requires a server URL")
		}
		return NewSelfHosted(serverURL, caller), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (supported: datalab, selfhosted)", name)
	}
}
