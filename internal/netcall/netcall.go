// Package netcall performs single HTTP round trips under a per-call
// deadline combined with an external cancellation signal, and
// classifies transport failures so callers can decide what is worth
// retrying.
package netcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// FailureKind classifies why a call failed at the transport level.
type FailureKind string

const (
	KindTimeout    FailureKind = "timeout"
	KindConnection FailureKind = "connection"
	KindDNS        FailureKind = "dns"
	KindUnknown    FailureKind = "unknown"
)

// Error is a transport failure with its classification.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("network error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Caller issues bounded HTTP calls. The zero value is not usable; use
// New so every call shares one client and one deadline policy.
type Caller struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Caller with the given per-call deadline. The client has
// no Timeout of its own; the deadline is applied per call so the
// external cancellation signal and the timer compose in one context.
func New(timeout time.Duration) *Caller {
	return &Caller{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Do executes one request. The call is aborted by whichever fires
// first: the per-call deadline or the caller's ctx. A deadline abort is
// reported as a timeout Error; an abort caused by ctx itself surfaces
// as ctx.Err() so cancellation is never confused with a timeout.
//
// The deadline covers the response body too: the body stays readable
// after Do returns and closing it releases the timer. Callers must
// Close the body on the success path.
func (c *Caller) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, err := c.client.Do(req.WithContext(callCtx))
	if err == nil {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	// The timer is released on every failure path.
	cancel()

	// The outer signal fired: report cancellation, not a network
	// failure, even though the aborted call surfaces as an URL error.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if callCtx.Err() == context.DeadlineExceeded {
		return nil, &Error{Kind: KindTimeout, Err: err}
	}

	return nil, &Error{Kind: Classify(err), Err: err}
}

// cancelOnClose keeps the per-call context alive while the body is
// consumed. Cancelling when Do returns would abort in-flight reads of
// large payloads.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Classify maps a transport error to a FailureKind. Structured error
// types are inspected first; substring matching on the failure text is
// the fallback of last resort.
func Classify(err error) FailureKind {
	if err == nil {
		return KindUnknown
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write") {
		return KindConnection
	}

	return classifyByText(err.Error())
}

func classifyByText(msg string) FailureKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns") || strings.Contains(msg, "name resolution"):
		return KindDNS
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection closed"):
		return KindConnection
	default:
		return KindUnknown
	}
}
