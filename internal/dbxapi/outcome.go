// Package dbxapi is the remote-platform client: a retrying HTTP executor
// plus the identity, compute, workspace, and catalog operations built on it.
package dbxapi

import (
	"encoding/json"

	"dpm/internal/domain"
)

// Outcome is the uniform result of one executed request. Body is always
// non-nil; Err is set iff the status is outside the success set or the
// platform was unreachable after all attempts (StatusCode 0).
type Outcome struct {
	StatusCode int
	Body       map[string]interface{}
	Note       string
	Err        string

	method   string
	url      string
	attempts int
	cause    string
}

// OK reports whether the request succeeded.
func (o Outcome) OK() bool { return o.Err == "" }

// DomainError converts a failed outcome into its typed domain error:
// TransportError when the platform was unreachable, RemoteAPIError for a
// non-2xx response. Nil for successful outcomes.
func (o Outcome) DomainError() error {
	if o.Err == "" {
		return nil
	}
	if o.StatusCode == 0 {
		return &domain.TransportError{
			Method:   o.method,
			URL:      o.url,
			Attempts: o.attempts,
			Message:  o.cause,
		}
	}
	return &domain.RemoteAPIError{
		Method:     o.method,
		URL:        o.url,
		StatusCode: o.StatusCode,
		Body:       o.BodyText(),
	}
}

// BodyText renders the response body as compact JSON for error messages
// and audit evidence.
func (o Outcome) BodyText() string {
	if len(o.Body) == 0 {
		return ""
	}
	b, err := json.Marshal(o.Body)
	if err != nil {
		return ""
	}
	return string(b)
}

// stringField extracts a string value from a decoded JSON object.
func stringField(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

// resourceList extracts a list of JSON objects from a decoded body.
func resourceList(body map[string]interface{}, key string) []map[string]interface{} {
	raw, _ := body[key].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
