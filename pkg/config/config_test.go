package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmrschmidt/RestSpy/pkg/double"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "restspy.yaml", `
port: 4567
read_timeout: 15
write_timeout: 20
log_level: debug
log_format: json
spy_capacity: 50
doubles:
  - pattern: /users/.*
    status: 200
    headers: {Content-Type: application/json}
    body: '{"name":"jane"}'
  - pattern: /health
proxies:
  - pattern: /.*
    target: https://api.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4567, cfg.Port)
	assert.Equal(t, 15, cfg.ReadTimeout)
	assert.Equal(t, 20, cfg.WriteTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 50, cfg.SpyCapacity)

	require.Len(t, cfg.Doubles, 2)
	assert.Equal(t, "/users/.*", cfg.Doubles[0].Pattern)
	assert.Equal(t, 200, cfg.Doubles[0].Status)
	assert.Equal(t, "application/json", cfg.Doubles[0].Headers["Content-Type"])
	assert.Equal(t, `{"name":"jane"}`, cfg.Doubles[0].Body)
	assert.Zero(t, cfg.Doubles[1].Status, "status stays zero until the matchable is built")

	require.Len(t, cfg.Proxies, 1)
	assert.Equal(t, "https://api.example.com", cfg.Proxies[0].Target)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, dir, "empty.yaml", "")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "directory")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "port: [")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidYAML)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{name: "negative port", cfg: Config{Port: -1}, wantField: "port"},
		{name: "port too large", cfg: Config{Port: 70000}, wantField: "port"},
		{name: "negative read timeout", cfg: Config{ReadTimeout: -5}, wantField: "read_timeout"},
		{name: "negative write timeout", cfg: Config{WriteTimeout: -5}, wantField: "write_timeout"},
		{name: "negative spy capacity", cfg: Config{SpyCapacity: -1}, wantField: "spy_capacity"},
		{name: "unknown log level", cfg: Config{LogLevel: "loud"}, wantField: "log_level"},
		{name: "unknown log format", cfg: Config{LogFormat: "xml"}, wantField: "log_format"},
		{
			name:      "bad double pattern",
			cfg:       Config{Doubles: []DoubleSpec{{Pattern: "*"}}},
			wantField: "pattern",
		},
		{
			name:      "bad double status",
			cfg:       Config{Doubles: []DoubleSpec{{Pattern: "/x", Status: 99}}},
			wantField: "status",
		},
		{
			name:      "relative proxy target",
			cfg:       Config{Proxies: []ProxySpec{{Pattern: "/x", Target: "/relative"}}},
			wantField: "target",
		},
		{
			name:      "proxy target wrong scheme",
			cfg:       Config{Proxies: []ProxySpec{{Pattern: "/x", Target: "ftp://example.com"}}},
			wantField: "target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}

	t.Run("indexed entry errors name the entry", func(t *testing.T) {
		cfg := Config{Doubles: []DoubleSpec{{Pattern: "/ok"}, {Pattern: ""}}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "doubles[1]")
	})

	t.Run("zero config is valid", func(t *testing.T) {
		assert.NoError(t, (&Config{}).Validate())
	})
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RESTSPY_TEST_PORT", "7777")

	assert.Equal(t, "port: 7777", ExpandEnv("port: ${RESTSPY_TEST_PORT}"))
	assert.Equal(t, "port: 4545", ExpandEnv("port: ${RESTSPY_TEST_UNSET:-4545}"))
	assert.Equal(t, "port: ", ExpandEnv("port: ${RESTSPY_TEST_UNSET}"))
	assert.Equal(t, "no refs here", ExpandEnv("no refs here"))
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("RESTSPY_TEST_TARGET", "https://staging.example.com")

	path := writeFile(t, t.TempDir(), "restspy.yaml", `
proxies:
  - pattern: /.*
    target: ${RESTSPY_TEST_TARGET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Proxies, 1)
	assert.Equal(t, "https://staging.example.com", cfg.Proxies[0].Target)
}

func TestLoadDoubleFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10-first.yaml", `
doubles:
  - pattern: /first
`)
	writeFile(t, dir, "20-second.yaml", `
doubles:
  - pattern: /second
proxies:
  - pattern: /api/.*
    target: http://example.com
`)
	writeFile(t, dir, filepath.Join("sub", "30-third.yaml"), `
doubles:
  - pattern: /third
`)

	t.Run("recursive glob merges in sorted order", func(t *testing.T) {
		cfg, err := LoadDoubleFiles([]string{filepath.Join(dir, "**", "*.yaml")})
		require.NoError(t, err)

		require.Len(t, cfg.Doubles, 3)
		assert.Equal(t, "/first", cfg.Doubles[0].Pattern)
		assert.Equal(t, "/second", cfg.Doubles[1].Pattern)
		assert.Equal(t, "/third", cfg.Doubles[2].Pattern)
		require.Len(t, cfg.Proxies, 1)
	})

	t.Run("plain glob stays shallow", func(t *testing.T) {
		cfg, err := LoadDoubleFiles([]string{filepath.Join(dir, "*.yaml")})
		require.NoError(t, err)
		assert.Len(t, cfg.Doubles, 2)
	})

	t.Run("no matches is not an error", func(t *testing.T) {
		cfg, err := LoadDoubleFiles([]string{filepath.Join(dir, "*.json")})
		require.NoError(t, err)
		assert.Empty(t, cfg.Doubles)
		assert.Empty(t, cfg.Proxies)
	})

	t.Run("invalid file fails the whole load", func(t *testing.T) {
		bad := t.TempDir()
		writeFile(t, bad, "bad.yaml", `
doubles:
  - pattern: "*"
`)
		_, err := LoadDoubleFiles([]string{filepath.Join(bad, "*.yaml")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.yaml")
	})
}

func TestMatchables(t *testing.T) {
	cfg := &Config{
		Doubles: []DoubleSpec{{Pattern: "/users/.*", Body: "jane"}},
		Proxies: []ProxySpec{{Pattern: "/.*", Target: "https://api.example.com"}},
	}

	ms, err := cfg.Matchables()
	require.NoError(t, err)
	require.Len(t, ms, 2)

	p, ok := ms[0].(*double.Proxy)
	require.True(t, ok, "proxies must come first so doubles shadow them")
	assert.Equal(t, "https://api.example.com", p.Target().String())

	d, ok := ms[1].(*double.Double)
	require.True(t, ok)
	assert.Equal(t, 200, d.StatusCode(), "status defaults to 200")
	assert.Equal(t, []byte("jane"), d.Body())
}

type fakeRegistrar struct {
	applied [][]double.Matchable
}

func (f *fakeRegistrar) SetMatchables(ms []double.Matchable) {
	f.applied = append(f.applied, ms)
}

func TestApply(t *testing.T) {
	reg := &fakeRegistrar{}
	cfg := &Config{Doubles: []DoubleSpec{{Pattern: "/a"}, {Pattern: "/b"}}}

	require.NoError(t, Apply(cfg, reg))
	require.Len(t, reg.applied, 1)
	assert.Len(t, reg.applied[0], 2)
}

func TestApply_InvalidSpec(t *testing.T) {
	reg := &fakeRegistrar{}
	// Validate catches this at load time; Apply still must not install
	// a half-built collection when handed an unvalidated config.
	cfg := &Config{Doubles: []DoubleSpec{{Pattern: "/ok"}, {Pattern: "("}}}

	err := Apply(cfg, reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doubles[1]")
	assert.Empty(t, reg.applied)
}

func TestWatchPaths(t *testing.T) {
	paths := WatchPaths("restspy.yaml", []string{
		filepath.Join("doubles", "**", "*.yaml"),
		filepath.Join("extra", "one.yaml"),
		filepath.Join("doubles", "**", "*.yml"),
		"*.yaml",
	})

	assert.Equal(t, []string{"restspy.yaml", "doubles", "extra", "."}, paths)
}
