// Package frame implements the single wire message shape exchanged in
// both directions over a wsrelay connection: a JSON envelope carrying
// an application path, a verb, an optional correlation id, and an
// arbitrary payload.
package frame

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// Method is the frame verb. Unlike an HTTP method it only distinguishes
// request-shaped traffic from POST-by-convention broadcasts and events.
type Method string

const (
	MethodGET    Method = "GET"
	MethodPOST   Method = "POST"
	MethodPUT    Method = "PUT"
	MethodDELETE Method = "DELETE"
)

// Frame is the symmetric message type described in spec.md §3.
type Frame struct {
	URL    string          `json:"url"`
	Method Method          `json:"method,omitempty"`
	ID     string          `json:"id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewID mints a fresh correlation id, unique within the process.
func NewID() string {
	return uuid.NewString()
}

// Marshal serializes data into a Frame's Data field. A nil value
// marshals to JSON null, matching spec.md's "data == null" convention
// for bodiless responses.
func Marshal(url string, method Method, id string, data any) (*Frame, error) {
	var raw json.RawMessage
	if data == nil {
		raw = json.RawMessage("null")
	} else {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Frame{URL: url, Method: method, ID: id, Data: raw}, nil
}

// Encode serializes the frame to bytes for writing to a socket.
func Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses raw bytes off the wire into a Frame. It does not
// validate presence of URL; callers enforce that per spec.md §4.3 step 2.
func Decode(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.Method == "" {
		f.Method = MethodGET
	}
	return &f, nil
}

// ErrorFrame builds a `/error` protocol frame as described in spec.md §7.
func ErrorFrame(id string, message string) *Frame {
	data, _ := json.Marshal(map[string]string{"error": message})
	return &Frame{URL: "/error", Method: MethodPOST, ID: id, Data: data}
}

// SplitURL separates the pathname used for route matching from the
// raw query string, accepting both bare pathnames and full URLs with
// an authority component (spec.md §4.3 step 3).
func SplitURL(raw string) (path string, query map[string]string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, map[string]string{}
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	query = map[string]string{}
	for k, vals := range u.Query() {
		if len(vals) > 0 {
			query[k] = vals[len(vals)-1]
		}
	}
	return path, query
}

var sanitizePolicy = bluemonday.StrictPolicy()

// Sanitize strips HTML from every string leaf of a JSON payload. It is
// applied to routes tagged sanitizeHTML (SPEC_FULL.md §4.1) so that
// user-generated content echoed back through a broadcast or topic
// event cannot carry raw markup to other clients.
func Sanitize(data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 {
		return data, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	sanitized := sanitizeValue(v)
	return json.Marshal(sanitized)
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return sanitizePolicy.Sanitize(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

// IsAPIPath reports whether a pathname falls under the API prefix the
// auth gate governs (spec.md §4.7).
func IsAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
