// Package pattern compiles the endpoint patterns matchables are
// registered under.
//
// Patterns are regular expressions evaluated unanchored against the
// request endpoint (path plus any query string): "/users" matches
// "/users/7?page=2", and "/.*" matches everything. Callers who need
// exactness anchor the pattern themselves ("^/users$").
package pattern

import (
	"fmt"
	"regexp"
)

// Compile turns a pattern source into a matcher. An empty or
// uncompilable source fails here, at construction, rather than
// becoming an entry that silently never matches.
func Compile(src string) (*regexp.Regexp, error) {
	if src == "" {
		return nil, fmt.Errorf("pattern is empty")
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", src, err)
	}
	return re, nil
}

// Validate reports whether src would compile. Config validation uses
// this to reject bad patterns before a server ever starts.
func Validate(src string) error {
	_, err := Compile(src)
	return err
}
