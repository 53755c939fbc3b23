package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lehigh-university-libraries/docprep/internal/netcall"
)

// DefaultDatalabURL is the cloud Marker API endpoint.
const DefaultDatalabURL = "https://www.datalab.to/api/v1/marker"

// Datalab converts documents through the Datalab cloud Marker API.
// Authentication is an X-Api-Key header; polling follows the
// request_check_url the API returns, which must pass the allow-list
// before it is ever dialed. The cloud queue needs a short grace period
// after submit before the first poll returns anything meaningful.
type Datalab struct {
	submitURL string
	caller    *netcall.Caller
}

// NewDatalab creates the cloud strategy. submitURL may be empty to use
// the production endpoint.
func NewDatalab(submitURL string, caller *netcall.Caller) *Datalab {
	if submitURL == "" {
		submitURL = DefaultDatalabURL
	}
	return &Datalab{submitURL: submitURL, caller: caller}
}

func (d *Datalab) Name() string { return "datalab" }

func (d *Datalab) NeedsInitialPropagationDelay() bool { return true }

func (d *Datalab) Submit(ctx context.Context, file SourceFile, opts Options, creds Credentials) (*SubmitReceipt, error) {
	body, contentType, err := encodeSubmit(file, opts, nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, d.submitURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Api-Key", creds.APIKey)

	resp, err := d.caller.Do(ctx, req)
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

	checkURL := stringField(m, "request_check_url")
	if checkURL == "" {
		return nil, &MalformedResponseError{StatusCode: resp.StatusCode, Reason: "missing request_check_url"}
	}
	if err := ValidateCheckURL(checkURL); err != nil {
		return nil, err
	}

	return &SubmitReceipt{CheckToken: checkURL}, nil
}

func (d *Datalab) Poll(ctx context.Context, checkToken string, creds Credentials) (*PollResult, error) {
	// Re-validated on every poll: the token round-trips through job
	// state and must never widen into an arbitrary outbound target.
	if err := ValidateCheckURL(checkToken); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, checkToken, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("X-Api-Key", creds.APIKey)

	resp, err := d.caller.Do(ctx, req)
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

	// Datalab reports success=false with an error message once a
	// conversion has failed, alongside status "complete".
	if errMsg := backendMessage(m); errMsg != "" && !boolField(m, "success") {
		result.Status = StatusError
		result.Message = errMsg
		return result, nil
	}

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
		// Status absent but the response validated: the request is
		// still being picked up by the queue.
		result.Status = StatusPending
	}

	return result, nil
}

func (d *Datalab) Health(ctx context.Context) error {
	// The cloud API has no unauthenticated health endpoint; probe the
	// submit URL and accept any response that is not a transport
	// failure.
	req, err := http.NewRequest(http.MethodGet, d.submitURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := d.caller.Do(ctx, req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
