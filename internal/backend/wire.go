package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// trustedDomain is the only domain poll targets handed back by the
// cloud backend may resolve to.
const trustedDomain = "datalab.to"

// ValidateCheckURL rejects poll targets that are not served over an
// encrypted transport by the trusted domain or one of its subdomains.
// The check runs before any network call is attempted.
func ValidateCheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid check URL returned by the backend")
	}
	if u.Scheme != "https" {
		return fmt.Errorf("check URL must use https, got %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host != trustedDomain && !strings.HasSuffix(host, "."+trustedDomain) {
		return fmt.Errorf("check URL host %q is not an allowed %s endpoint", host, trustedDomain)
	}
	return nil
}

// encodeSubmit builds the multipart request body every backend variant
// uses for submission: the source bytes plus each option as an
// individually encoded form value. extra carries variant-specific
// fields such as the self-hosted server's geminiApiKey.
func encodeSubmit(file SourceFile, opts Options, extra map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	fields := map[string]string{
		"output_format":            opts.OutputFormat,
		"paginate":                 strconv.FormatBool(opts.Paginate),
		"format_lines":             strconv.FormatBool(opts.FormatLines),
		"use_llm":                  strconv.FormatBool(opts.UseLLM),
		"disable_image_extraction": strconv.FormatBool(opts.DisableImageExtraction),
		"redo_inline_math":         strconv.FormatBool(opts.RedoInlineMath),
	}
	if opts.Langs != "" {
		fields["langs"] = opts.Langs
	}
	for k, v := range extra {
		fields[k] = v
	}

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return body, w.FormDataContentType(), nil
}

// recognizedFields are the keys a valid backend response may carry,
// with the primitive type each must have. A response presenting none of
// them with the right type is rejected as malformed before the ok/error
// branches are inspected, even though the backend is nominally trusted.
var recognizedFields = map[string]func(any) bool{
	"success":           isBool,
	"status":            isString,
	"request_id":        isString,
	"request_check_url": isString,
	"markdown":          isString,
	"html":              isString,
	"json":              isString,
	"output":            isString,
	"error":             isString,
	"detail":            isString,
}

func isString(v any) bool { _, ok := v.(string); return ok }
func isBool(v any) bool   { _, ok := v.(bool); return ok }

// decodeResponse reads and validates a response body. On a parse
// failure the returned error carries only the HTTP status; the raw
// decoder message never reaches the caller.
func decodeResponse(statusCode int, r io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &MalformedResponseError{StatusCode: statusCode}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &MalformedResponseError{StatusCode: statusCode}
	}

	for key, okType := range recognizedFields {
		if v, present := m[key]; present && okType(v) {
			return m, nil
		}
	}
	return nil, &MalformedResponseError{StatusCode: statusCode, Reason: "no recognized field present"}
}

// serviceError turns a non-ok response into a ServiceError carrying the
// backend's message when one can be extracted, or a generic fallback.
func serviceError(statusCode int, r io.Reader) error {
	raw, _ := io.ReadAll(r)

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		if msg := backendMessage(m); msg != "" {
			return &ServiceError{StatusCode: statusCode, Message: msg}
		}
	}
	return &ServiceError{StatusCode: statusCode, Message: "the conversion service reported a failure"}
}

// backendMessage extracts a human-readable message from an error
// payload, trying the field names the known backends use.
func backendMessage(m map[string]any) string {
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func floatField(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

// firstOutputField returns the converted text from whichever output
// field the backend populated.
func firstOutputField(m map[string]any) (string, bool) {
	for _, key := range []string{"markdown", "html", "json", "output"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
