// Package config loads and validates the YAML files a restspy server
// can start from: server settings plus doubles and proxies to preload.
package config

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmrschmidt/RestSpy/internal/pattern"
	"github.com/dmrschmidt/RestSpy/pkg/double"
)

// ValidationError reports a config field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Config is a server configuration file. Timeouts are in seconds; zero
// values fall back to the server defaults.
type Config struct {
	Port         int    `yaml:"port,omitempty"`
	ReadTimeout  int    `yaml:"read_timeout,omitempty"`
	WriteTimeout int    `yaml:"write_timeout,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
	LogFormat    string `yaml:"log_format,omitempty"`
	SpyCapacity  int    `yaml:"spy_capacity,omitempty"`

	Doubles []DoubleSpec `yaml:"doubles,omitempty"`
	Proxies []ProxySpec  `yaml:"proxies,omitempty"`
}

// DoubleSpec is one canned response in a config file.
type DoubleSpec struct {
	Pattern string            `yaml:"pattern"`
	Status  int               `yaml:"status,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
}

// ProxySpec is one pass-through entry in a config file.
type ProxySpec struct {
	Pattern string `yaml:"pattern"`
	Target  string `yaml:"target"`
}

var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"":     true,
	"text": true,
	"json": true,
}

// Validate checks every field, so a bad file fails at load time rather
// than as a server that silently misbehaves.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ValidationError{Field: "port", Message: fmt.Sprintf("port %d is out of range", c.Port)}
	}
	if c.ReadTimeout < 0 {
		return &ValidationError{Field: "read_timeout", Message: "must not be negative"}
	}
	if c.WriteTimeout < 0 {
		return &ValidationError{Field: "write_timeout", Message: "must not be negative"}
	}
	if c.SpyCapacity < 0 {
		return &ValidationError{Field: "spy_capacity", Message: "must not be negative"}
	}
	if !validLogLevels[c.LogLevel] {
		return &ValidationError{Field: "log_level", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if !validLogFormats[c.LogFormat] {
		return &ValidationError{Field: "log_format", Message: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}

	for i := range c.Doubles {
		if err := c.Doubles[i].Validate(); err != nil {
			return fmt.Errorf("doubles[%d]: %w", i, err)
		}
	}
	for i := range c.Proxies {
		if err := c.Proxies[i].Validate(); err != nil {
			return fmt.Errorf("proxies[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks the spec's pattern and status range.
func (s *DoubleSpec) Validate() error {
	if err := pattern.Validate(s.Pattern); err != nil {
		return &ValidationError{Field: "pattern", Message: err.Error()}
	}
	if s.Status != 0 && (s.Status < 100 || s.Status > 599) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("status code %d is out of range", s.Status)}
	}
	return nil
}

// Double builds the matchable the spec describes, defaulting the
// status to 200.
func (s *DoubleSpec) Double() (*double.Double, error) {
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	var body []byte
	if s.Body != "" {
		body = []byte(s.Body)
	}
	return double.NewDouble(s.Pattern, status, s.Headers, body)
}

// Validate checks the spec's pattern and target URL.
func (s *ProxySpec) Validate() error {
	if err := pattern.Validate(s.Pattern); err != nil {
		return &ValidationError{Field: "pattern", Message: err.Error()}
	}
	u, err := url.Parse(s.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "target", Message: fmt.Sprintf("%q is not an absolute http(s) URL", s.Target)}
	}
	return nil
}

// Proxy builds the matchable the spec describes.
func (s *ProxySpec) Proxy() (*double.Proxy, error) {
	return double.NewProxy(s.Pattern, s.Target)
}

// Matchables builds the doubles and proxies the config describes.
// Proxies come first so that, under last-match-wins dispatch, a
// catch-all proxy stays the fallback and configured doubles shadow it
// for the endpoints they pin down.
func (c *Config) Matchables() ([]double.Matchable, error) {
	ms := make([]double.Matchable, 0, len(c.Doubles)+len(c.Proxies))
	for i := range c.Proxies {
		p, err := c.Proxies[i].Proxy()
		if err != nil {
			return nil, fmt.Errorf("proxies[%d]: %w", i, err)
		}
		ms = append(ms, p)
	}
	for i := range c.Doubles {
		d, err := c.Doubles[i].Double()
		if err != nil {
			return nil, fmt.Errorf("doubles[%d]: %w", i, err)
		}
		ms = append(ms, d)
	}
	return ms, nil
}

// Registrar is the server surface Apply needs.
type Registrar interface {
	SetMatchables([]double.Matchable)
}

// Apply installs the config's doubles and proxies as the server's
// whole collection, replacing whatever was registered before.
func Apply(c *Config, r Registrar) error {
	ms, err := c.Matchables()
	if err != nil {
		return err
	}
	r.SetMatchables(ms)
	return nil
}

// Merge appends other's doubles and proxies onto c. Server settings in
// other are ignored; only the first file in a chain decides those.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	c.Doubles = append(c.Doubles, other.Doubles...)
	c.Proxies = append(c.Proxies, other.Proxies...)
}
