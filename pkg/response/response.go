// Package response models what a spy server answered: a canned double,
// a relayed upstream response, or nothing at all.
package response

import (
	"net/http"
	"strings"

	"github.com/dmrschmidt/RestSpy/pkg/decoder"
	"github.com/dmrschmidt/RestSpy/pkg/double"
)

// Kind tells how an answer came to be.
type Kind string

const (
	KindProxy    Kind = "proxy"
	KindDouble   Kind = "double"
	KindNotFound Kind = "not_found"
)

// Response is an immutable record of a single answer. The decoded body
// is computed once, at construction, from the raw body and the
// response's Content-Encoding header.
type Response struct {
	kind        Kind
	statusCode  int
	headers     map[string]string
	body        []byte
	decodedBody []byte
}

// Proxied wraps an upstream response relayed by a proxy entry.
func Proxied(statusCode int, headers map[string]string, body []byte) *Response {
	return newResponse(KindProxy, statusCode, headers, body)
}

// FromDouble wraps the canned response a double serves.
func FromDouble(d *double.Double) *Response {
	return newResponse(KindDouble, d.StatusCode(), d.Headers(), d.Body())
}

// NotFound is the answer when nothing matched: 404, no headers, no
// body.
func NotFound() *Response {
	return newResponse(KindNotFound, http.StatusNotFound, nil, nil)
}

func newResponse(kind Kind, statusCode int, headers map[string]string, body []byte) *Response {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	b := append([]byte(nil), body...)
	return &Response{
		kind:        kind,
		statusCode:  statusCode,
		headers:     h,
		body:        b,
		decodedBody: decoder.Decode(b, contentEncoding(h)),
	}
}

// Kind returns how the answer was produced.
func (r *Response) Kind() Kind { return r.kind }

// StatusCode returns the answered status.
func (r *Response) StatusCode() int { return r.statusCode }

// Headers returns a copy of the answered headers.
func (r *Response) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// Body returns a copy of the body exactly as answered, still encoded.
func (r *Response) Body() []byte { return append([]byte(nil), r.body...) }

// DecodedBody returns a copy of the body with its Content-Encoding
// undone.
func (r *Response) DecodedBody() []byte { return append([]byte(nil), r.decodedBody...) }

// Representation is the projection tests observe; its body is the
// decoded one.
type Representation struct {
	Type       string `json:"type"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// Representation projects the response for recording and assertions.
func (r *Response) Representation() Representation {
	return Representation{
		Type:       string(r.kind),
		StatusCode: r.statusCode,
		Body:       string(r.decodedBody),
	}
}

func contentEncoding(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Encoding") {
			return v
		}
	}
	return ""
}
