package netcall

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"
)

func TestDoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	caller := New(5 * time.Second)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	resp, err := caller.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestDoLargeBodyReadableAfterReturn(t *testing.T) {
	// 8MB forces the payload well past the transport's buffering, so
	// most of it is still in flight when Do returns.
	const chunk = 1 << 20
	const chunks = 8
	payload := bytes.Repeat([]byte("m"), chunk)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < chunks; i++ {
			if _, err := w.Write(payload); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}))
	defer server.Close()

	caller := New(5 * time.Second)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	resp, err := caller.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Expected full body read after Do returned, got %v (read %d bytes)", err, len(body))
	}
	if len(body) != chunk*chunks {
		t.Errorf("Expected %d bytes, got %d", chunk*chunks, len(body))
	}
}

func TestDoDeadlineCoversBodyRead(t *testing.T) {
	block := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("partial")); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	}))
	// The handler must be unblocked before server.Close waits on it;
	// defers run LIFO, so close(block) is registered after Close.
	defer server.Close()
	defer close(block)

	caller := New(50 * time.Millisecond)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	resp, err := caller.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Fatal("Expected the deadline to abort a stalled body read")
	}
}

func TestDoDeadlineReportsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	caller := New(20 * time.Millisecond)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	_, err = caller.Do(context.Background(), req)
	var ne *Error
	if !errors.As(err, &ne) {
		t.Fatalf("Expected *netcall.Error, got %v", err)
	}
	if ne.Kind != KindTimeout {
		t.Errorf("Expected timeout kind, got %s", ne.Kind)
	}
}

func TestDoCancellationIsNotTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	caller := New(5 * time.Second)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	_, err = caller.Do(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	var ne *Error
	if errors.As(err, &ne) {
		t.Errorf("Cancellation must not be wrapped as a network error, got kind %s", ne.Kind)
	}
}

func TestDoConnectionRefused(t *testing.T) {
	// Grab a free port, then close the listener so nothing accepts.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	caller := New(2 * time.Second)
	req, err := http.NewRequest(http.MethodGet, "http://"+addr, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	_, err = caller.Do(context.Background(), req)
	var ne *Error
	if !errors.As(err, &ne) {
		t.Fatalf("Expected *netcall.Error, got %v", err)
	}
	if ne.Kind != KindConnection {
		t.Errorf("Expected connection kind, got %s", ne.Kind)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected FailureKind
	}{
		{
			name:     "dns error",
			err:      &net.DNSError{Err: "no such host", Name: "example.invalid"},
			expected: KindDNS,
		},
		{
			name:     "connection refused errno",
			err:      &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			expected: KindConnection,
		},
		{
			name:     "text fallback timeout",
			err:      errors.New("request timed out waiting for response"),
			expected: KindTimeout,
		},
		{
			name:     "text fallback case insensitive",
			err:      errors.New("Connection Refused by peer"),
			expected: KindConnection,
		},
		{
			name:     "text fallback dns",
			err:      errors.New("lookup failed: no such host"),
			expected: KindDNS,
		},
		{
			name:     "unknown",
			err:      errors.New("something odd happened"),
			expected: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
