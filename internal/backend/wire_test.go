package backend

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
)

func TestValidateCheckURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{
			name: "trusted domain",
			url:  "https://datalab.to/api/v1/marker/abc123",
		},
		{
			name: "trusted subdomain",
			url:  "https://www.datalab.to/api/v1/marker/abc123",
		},
		{
			name:    "http rejected",
			url:     "http://www.datalab.to/api/v1/marker/abc123",
			wantErr: true,
		},
		{
			name:    "other host rejected",
			url:     "https://evil.example.com/api/v1/marker/abc123",
			wantErr: true,
		},
		{
			name:    "lookalike suffix rejected",
			url:     "https://notdatalab.to/api/v1/marker/abc123",
			wantErr: true,
		},
		{
			name:    "embedded trusted name rejected",
			url:     "https://datalab.to.evil.example.com/x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCheckURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCheckURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestEncodeSubmit(t *testing.T) {
	file := SourceFile{Name: "report.pdf", Data: []byte("%PDF-1.4 test")}
	opts := Options{
		OutputFormat: "markdown",
		Langs:        "en,de",
		Paginate:     true,
		UseLLM:       true,
	}

	body, contentType, err := encodeSubmit(file, opts, map[string]string{"geminiApiKey": "g-key"})
	if err != nil {
		t.Fatalf("encodeSubmit() unexpected error: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("Expected multipart/form-data content type, got %s (%v)", contentType, err)
	}

	reader := multipart.NewReader(bytes.NewReader(body.Bytes()), params["boundary"])
	fields := map[string]string{}
	var fileData []byte
	var fileName string

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read part: %v", err)
		}
		data, _ := io.ReadAll(part)
		if part.FormName() == "file" {
			fileData = data
			fileName = part.FileName()
			continue
		}
		fields[part.FormName()] = string(data)
	}

	if fileName != "report.pdf" {
		t.Errorf("Expected filename report.pdf, got %s", fileName)
	}
	if !bytes.Equal(fileData, file.Data) {
		t.Error("File bytes did not round-trip")
	}

	expected := map[string]string{
		"output_format":            "markdown",
		"langs":                    "en,de",
		"paginate":                 "true",
		"format_lines":             "false",
		"use_llm":                  "true",
		"disable_image_extraction": "false",
		"redo_inline_math":         "false",
		"geminiApiKey":             "g-key",
	}
	for k, want := range expected {
		if fields[k] != want {
			t.Errorf("Field %s: expected %q, got %q", k, want, fields[k])
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		malformed bool
	}{
		{
			name: "recognized status field",
			body: `{"status": "processing"}`,
		},
		{
			name: "recognized success field",
			body: `{"success": true, "request_id": "abc"}`,
		},
		{
			name:      "no recognized fields",
			body:      `{"foo": "bar"}`,
			wantErr:   true,
			malformed: true,
		},
		{
			name:      "recognized field with wrong type",
			body:      `{"status": 42}`,
			wantErr:   true,
			malformed: true,
		},
		{
			name:      "unparseable body",
			body:      `<html>not json</html>`,
			wantErr:   true,
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeResponse(200, strings.NewReader(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.malformed {
				var me *MalformedResponseError
				if !errors.As(err, &me) {
					t.Errorf("Expected MalformedResponseError, got %v", err)
				}
			}
		})
	}
}

func TestDecodeResponseParseFailureHidesBody(t *testing.T) {
	_, err := decodeResponse(502, strings.NewReader("upstream exploded: secret internals"))
	var me *MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("Expected MalformedResponseError, got %v", err)
	}
	if me.StatusCode != 502 {
		t.Errorf("Expected status 502, got %d", me.StatusCode)
	}
	if strings.Contains(err.Error(), "secret internals") {
		t.Errorf("Raw body must not be surfaced, got %q", err.Error())
	}
}

func TestServiceError(t *testing.T) {
	t.Run("uses backend detail", func(t *testing.T) {
		err := serviceError(400, strings.NewReader(`{"detail": "Only PDF files are supported"}`))
		var se *ServiceError
		if !errors.As(err, &se) {
			t.Fatalf("Expected ServiceError, got %v", err)
		}
		if se.Message != "Only PDF files are supported" {
			t.Errorf("Expected backend message, got %q", se.Message)
		}
	})

	t.Run("generic fallback on unparseable body", func(t *testing.T) {
		err := serviceError(500, strings.NewReader("stack trace gibberish"))
		var se *ServiceError
		if !errors.As(err, &se) {
			t.Fatalf("Expected ServiceError, got %v", err)
		}
		if strings.Contains(se.Message, "gibberish") {
			t.Errorf("Raw body must not be surfaced, got %q", se.Message)
		}
		if se.StatusCode != 500 {
			t.Errorf("Expected status 500, got %d", se.StatusCode)
		}
	})
}
