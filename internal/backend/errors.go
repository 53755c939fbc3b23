package backend

import "fmt"

// ServiceError means the backend responded but reported failure: a
// non-2xx HTTP status or an explicit error payload.
type ServiceError struct {
	StatusCode int    // 0 when the failure came from the payload, not HTTP
	Message    string // backend-supplied message or a generic fallback
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend reported an error: %s", e.Message)
}

// MalformedResponseError means the response body violated the
// recognized-field contract: it parsed but presented none of the
// expected fields with the expected types, or it did not parse at all.
// When the body fails to parse only the HTTP status is recorded; the
// raw parse failure text is never surfaced to the user.
type MalformedResponseError struct {
	StatusCode int
	Reason     string
}

func (e *MalformedResponseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unparseable response body (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("malformed response: %s", e.Reason)
}
