package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/docprep/internal/netcall"
)

// SelfHosted converts documents through a self-hosted marker server:
// the local FastAPI server, a HuggingFace Space, or a Modal deployment.
// The wire differs from Datalab in endpoint layout and credential
// placement: the Gemini key travels as a geminiApiKey form field, and
// status is polled at {base}/check/{request_id}. The check URL is
// always constructed from the operator-configured base URL; an absolute
// URL returned by the server is never followed.
type SelfHosted struct {
	baseURL string
	caller  *netcall.Caller
}

// NewSelfHosted creates the self-hosted strategy for the given server
// base URL.
func NewSelfHosted(baseURL string, caller *netcall.Caller) *SelfHosted {
	return &SelfHosted{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  caller,
	}
}

func (s *SelfHosted) Name() string { return "selfhosted" }

// NeedsInitialPropagationDelay is false: the server registers the job
// before responding to submit, so the first poll is immediately valid.
func (s *SelfHosted) NeedsInitialPropagationDelay() bool { return false }

func (s *SelfHosted) Submit(ctx context.Context, file SourceFile, opts Options, creds Credentials) (*SubmitReceipt, error) {
	extra := map[string]string{}
	if opts.UseLLM && creds.GeminiKey != "" {
		extra["geminiApiKey"] = creds.GeminiKey
	}

	body, contentType, err := encodeSubmit(file, opts, extra)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/convert", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serviceError(resp.StatusCode, resp.Body)
	}

	m, err := decodeResponse(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, err
	}

	if !boolField(m, "success") {
		msg := backendMessage(m)
		if msg == "" {
			msg = "submission was rejected"
		}
		return nil, &ServiceError{Message: msg}
	}

	requestID := stringField(m, "request_id")
	if requestID == "" {
		return nil, &MalformedResponseError{StatusCode: resp.StatusCode, Reason: "missing request_id"}
	}

	return &SubmitReceipt{CheckToken: requestID}, nil
}

func (s *SelfHosted) Poll(ctx context.Context, checkToken string, creds Credentials) (*PollResult, error) {
	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/check/"+checkToken, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}

	resp, err := s.caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serviceError(resp.StatusCode, resp.Body)
	}

	m, err := decodeResponse(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, err
	}

	result := &PollResult{Progress: floatField(m, "progress")}

	switch stringField(m, "status") {
	case "complete":
		result.Status = StatusComplete
		if out, ok := firstOutputField(m); ok {
			result.Output = out
		}
	case "processing":
		result.Status = StatusProcessing
	case "pending":
		result.Status = StatusPending
	case "error":
		result.Status = StatusError
		result.Message = backendMessage(m)
	default:
		return nil, &MalformedResponseError{StatusCode: resp.StatusCode, Reason: "unrecognized status value"}
	}

	return result, nil
}

// Health probes the server root, which reports {"status": "online"}.
func (s *SelfHosted) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := s.caller.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(resp.StatusCode, resp.Body)
	}

	m, err := decodeResponse(resp.StatusCode, resp.Body)
	if err != nil {
		return err
	}
	if stringField(m, "status") != "online" {
		return &ServiceError{Message: fmt.Sprintf("server at %s is not online", s.baseURL)}
	}
	return nil
}
