// Package double holds the matchable model: the entries a spy server
// answers from, and the per-port registry that tracks them.
package double

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/dmrschmidt/RestSpy/internal/id"
	"github.com/dmrschmidt/RestSpy/internal/pattern"
)

// Matchable is an entry registered against a port: an identity, the
// pattern it answers for, and (by concrete type) the behavior that
// produces the response.
type Matchable interface {
	// ID returns the identity assigned at construction. It is opaque
	// and stable for the value's lifetime.
	ID() string

	// Pattern returns the pattern source the entry was built from.
	Pattern() string

	// Matches reports whether the entry handles the given endpoint
	// (request path plus any query string).
	Matches(endpoint string) bool
}

type matchable struct {
	id  string
	src string
	re  *regexp.Regexp
}

func newMatchable(src string) (matchable, error) {
	re, err := pattern.Compile(src)
	if err != nil {
		return matchable{}, err
	}
	return matchable{id: id.New(), src: src, re: re}, nil
}

func (m *matchable) ID() string      { return m.id }
func (m *matchable) Pattern() string { return m.src }

func (m *matchable) Matches(endpoint string) bool {
	return m.re.MatchString(endpoint)
}

// Double serves a canned response for every matching request.
type Double struct {
	matchable
	statusCode int
	headers    map[string]string
	body       []byte
}

var _ Matchable = (*Double)(nil)

// NewDouble builds a canned-response entry. The pattern must compile
// and the status code must be a real HTTP status (100-599); headers
// and body may be empty.
func NewDouble(patternSrc string, statusCode int, headers map[string]string, body []byte) (*Double, error) {
	m, err := newMatchable(patternSrc)
	if err != nil {
		return nil, err
	}
	if statusCode < 100 || statusCode > 599 {
		return nil, fmt.Errorf("invalid status code %d", statusCode)
	}
	return &Double{
		matchable:  m,
		statusCode: statusCode,
		headers:    copyHeaders(headers),
		body:       append([]byte(nil), body...),
	}, nil
}

// StatusCode returns the status the double answers with.
func (d *Double) StatusCode() int { return d.statusCode }

// Headers returns a copy of the double's response headers.
func (d *Double) Headers() map[string]string { return copyHeaders(d.headers) }

// Body returns a copy of the double's response body.
func (d *Double) Body() []byte { return append([]byte(nil), d.body...) }

// Proxy relays matching requests to an upstream target.
type Proxy struct {
	matchable
	target *url.URL
}

var _ Matchable = (*Proxy)(nil)

// NewProxy builds a pass-through entry. The target must be an absolute
// http or https URL.
func NewProxy(patternSrc, target string) (*Proxy, error) {
	m, err := newMatchable(patternSrc)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q: need an absolute http(s) URL", target)
	}
	return &Proxy{matchable: m, target: u}, nil
}

// Target returns a copy of the upstream base URL.
func (p *Proxy) Target() *url.URL {
	u := *p.target
	return &u
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
