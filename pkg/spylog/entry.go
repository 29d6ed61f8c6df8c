// Package spylog records the traffic a spy server handled, so tests
// can assert on what actually arrived.
package spylog

import (
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/response"
)

// MaxRecordedBody caps how much of a request body an Entry carries.
const MaxRecordedBody = 10 << 10

// Entry captures one handled exchange: the request as it arrived and
// the representation of what was answered.
type Entry struct {
	// ID is a short unique identifier for the entry.
	ID string `json:"id"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`

	// Method is the HTTP method.
	Method string `json:"method"`

	// Endpoint is the request path including any query string, the
	// same string matchables are evaluated against.
	Endpoint string `json:"endpoint"`

	// Headers are the request headers.
	Headers map[string][]string `json:"headers,omitempty"`

	// Body is the request body, truncated beyond 10KB.
	Body string `json:"body,omitempty"`

	// BodySize is the original request body size in bytes.
	BodySize int `json:"bodySize"`

	// RemoteAddr is the client address.
	RemoteAddr string `json:"remoteAddr,omitempty"`

	// MatchedID is the id of the matchable that answered; empty when
	// nothing matched.
	MatchedID string `json:"matchedId,omitempty"`

	// Response is the representation of the produced answer.
	Response response.Representation `json:"response"`
}
