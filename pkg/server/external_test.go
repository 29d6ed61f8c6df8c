package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExternalServer_PortParsing(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    int
	}{
		{name: "explicit port", baseURL: "http://localhost:8080", want: 8080},
		{name: "http default", baseURL: "http://doubles.example.com", want: 80},
		{name: "https default", baseURL: "https://doubles.example.com", want: 443},
		{name: "https explicit", baseURL: "https://doubles.example.com:8443", want: 8443},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewExternalServer(tt.baseURL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Port())
		})
	}
}

func TestNewExternalServer_InvalidURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{name: "empty", baseURL: ""},
		{name: "no scheme", baseURL: "localhost:4545"},
		{name: "wrong scheme", baseURL: "ftp://example.com"},
		{name: "no host", baseURL: "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExternalServer(tt.baseURL)
			assert.Error(t, err)
		})
	}
}

func TestExternalServerStart_NoOp(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	s, err := NewExternalServer(ts.URL)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 0, calls, "Start must not touch the running server")
}

func TestExternalServerStop_ClearsServerState(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
	}))
	defer ts.Close()

	s, err := NewExternalServer(ts.URL)
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"DELETE /doubles", "DELETE /spy"}, seen)
}

func TestExternalServerStop_SurvivesUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	s, err := NewExternalServer(url)
	require.NoError(t, err)

	// The server being gone is not this suite's problem.
	assert.NoError(t, s.Stop(context.Background()))
}

func TestExternalServerStop_OneFailureDoesNotAbortTheOther(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/doubles" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	s, err := NewExternalServer(ts.URL)
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"/doubles", "/spy"}, seen)
}

func TestExternalServer_Verbs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Method + " " + r.URL.Path))
	}))
	defer ts.Close()

	s, err := NewExternalServer(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, ts.URL, s.BaseURL())

	body, err := s.Get(context.Background(), "/spy/status")
	require.NoError(t, err)
	assert.Equal(t, "GET /spy/status", string(body))

	body, err = s.Post(context.Background(), "/doubles", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "POST /doubles", string(body))

	body, err = s.Delete(context.Background(), "/spy")
	require.NoError(t, err)
	assert.Equal(t, "DELETE /spy", string(body))
}
