// Package apiclient talks to the point-of-sale backend REST API.
//
// Every call returns a Result whose Kind tells the caller which of the three
// outcomes happened: the request never completed, the backend answered with a
// non-success status, or it succeeded.
package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a Result.
type Kind int

const (
	// KindTransport means no response was received.
	KindTransport Kind = iota
	// KindStatus means the backend answered with a non-2xx status.
	KindStatus
	// KindSuccess means the backend answered with a 2xx status.
	KindSuccess
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindSuccess:
		return "success"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("apiclient: failed to decode response body: %w", err)
	}
	return nil
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Detail returns the "detail" field of a JSON error body, if there is one.
func (r *Response) Detail() (string, bool) {
	var body struct {
		Detail *string `json:"detail"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil || body.Detail == nil {
		return "", false
	}
	return *body.Detail, true
}

// Result is the outcome of one backend call. Response is nil for KindTransport
// and Err is nil otherwise.
type Result struct {
	Kind     Kind
	Response *Response
	Err      error
}

func transportFailure(err error) Result {
	return Result{Kind: KindTransport, Err: err}
}

func fromResponse(resp *Response) Result {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Kind: KindSuccess, Response: resp}
	}
	return Result{Kind: KindStatus, Response: resp}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// StatusCode returns the response status, or 0 for a transport failure.
func (r Result) StatusCode() int {
	if r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Message describes a failed result. It returns "" for success.
func (r Result) Message() string {
	switch r.Kind {
	case KindTransport:
		return r.Err.Error()
	case KindStatus:
		return fmt.Sprintf("%d %s", r.Response.StatusCode, strings.TrimSpace(r.Response.Text()))
	default:
		return ""
	}
}
