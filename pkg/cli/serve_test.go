package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/config"
	"github.com/dmrschmidt/RestSpy/pkg/engine"
)

func noFlagsChanged(string) bool { return false }

func TestBuildEngineConfig(t *testing.T) {
	t.Run("defaults when nothing is set", func(t *testing.T) {
		ec := buildEngineConfig(&config.Config{}, defaultServeFlags(), noFlagsChanged)

		if ec.Port != engine.DefaultPort {
			t.Errorf("port = %d, want %d", ec.Port, engine.DefaultPort)
		}
		if ec.ReadTimeout != 30*time.Second {
			t.Errorf("read timeout = %v, want 30s", ec.ReadTimeout)
		}
	})

	t.Run("config file overrides defaults", func(t *testing.T) {
		cfg := &config.Config{Port: 3000, ReadTimeout: 5, SpyCapacity: 10}
		ec := buildEngineConfig(cfg, defaultServeFlags(), noFlagsChanged)

		if ec.Port != 3000 {
			t.Errorf("port = %d, want 3000", ec.Port)
		}
		if ec.ReadTimeout != 5*time.Second {
			t.Errorf("read timeout = %v, want 5s", ec.ReadTimeout)
		}
		if ec.SpyCapacity != 10 {
			t.Errorf("spy capacity = %d, want 10", ec.SpyCapacity)
		}
	})

	t.Run("explicit flags override the config file", func(t *testing.T) {
		cfg := &config.Config{Port: 3000, WriteTimeout: 5}
		f := defaultServeFlags()
		f.port = 8080
		f.writeTimeout = 60
		ec := buildEngineConfig(cfg, f, changedSet("port", "write-timeout"))

		if ec.Port != 8080 {
			t.Errorf("port = %d, want 8080", ec.Port)
		}
		if ec.WriteTimeout != 60*time.Second {
			t.Errorf("write timeout = %v, want 60s", ec.WriteTimeout)
		}
	})
}

func TestLoadServeConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "restspy.yaml")
	if err := os.WriteFile(configPath, []byte("port: 3000\ndoubles:\n  - pattern: /ping\n    body: pong\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doublePath := filepath.Join(dir, "users.yaml")
	if err := os.WriteFile(doublePath, []byte("doubles:\n  - pattern: /users\n    body: '[]'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("file plus double globs", func(t *testing.T) {
		f := defaultServeFlags()
		f.configFile = configPath
		f.doubles = []string{filepath.Join(dir, "users.yaml")}

		cfg, err := loadServeConfig(f)
		if err != nil {
			t.Fatalf("loadServeConfig: %v", err)
		}
		if cfg.Port != 3000 {
			t.Errorf("port = %d, want 3000", cfg.Port)
		}
		if len(cfg.Doubles) != 2 {
			t.Errorf("doubles = %d, want 2", len(cfg.Doubles))
		}
	})

	t.Run("no files means an empty but valid config", func(t *testing.T) {
		cfg, err := loadServeConfig(defaultServeFlags())
		if err != nil {
			t.Fatalf("loadServeConfig: %v", err)
		}
		if len(cfg.Doubles) != 0 || len(cfg.Proxies) != 0 {
			t.Error("expected an empty config")
		}
	})

	t.Run("missing config file fails", func(t *testing.T) {
		f := defaultServeFlags()
		f.configFile = filepath.Join(dir, "absent.yaml")
		if _, err := loadServeConfig(f); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestBuildServeLogger(t *testing.T) {
	t.Run("config file level applies when the flag is untouched", func(t *testing.T) {
		cfg := &config.Config{LogLevel: "error"}
		log, closeLog, err := buildServeLogger(defaultServeFlags(), cfg, noFlagsChanged)
		if err != nil {
			t.Fatalf("buildServeLogger: %v", err)
		}
		defer closeLog()

		if log.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("info enabled despite config level error")
		}
	})

	t.Run("explicit flag beats the config file", func(t *testing.T) {
		cfg := &config.Config{LogLevel: "error"}
		log, closeLog, err := buildServeLogger(defaultServeFlags(), cfg, changedSet("log-level"))
		if err != nil {
			t.Fatalf("buildServeLogger: %v", err)
		}
		defer closeLog()

		// The flag default is info.
		if !log.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("info disabled despite explicit --log-level info")
		}
	})

	t.Run("log file receives a JSON copy", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "restspy.log")
		f := defaultServeFlags()
		f.logFile = path

		log, closeLog, err := buildServeLogger(f, &config.Config{}, noFlagsChanged)
		if err != nil {
			t.Fatalf("buildServeLogger: %v", err)
		}
		log.Info("probe", "port", 4545)
		closeLog()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"probe"`) {
			t.Errorf("log file missing JSON record: %s", data)
		}
	})

	t.Run("unwritable log file fails", func(t *testing.T) {
		f := defaultServeFlags()
		f.logFile = filepath.Join(t.TempDir(), "no", "such", "dir", "restspy.log")
		if _, _, err := buildServeLogger(f, &config.Config{}, noFlagsChanged); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestIsAddrInUseError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	_, bindErr := net.Listen("tcp", ln.Addr().String())
	if bindErr == nil {
		t.Fatal("expected the second bind to fail")
	}
	if !isAddrInUseError(bindErr) {
		t.Errorf("isAddrInUseError(%v) = false, want true", bindErr)
	}
	if isAddrInUseError(errors.New("something else")) {
		t.Error("unrelated error classified as address in use")
	}
}

func TestPortSuffix(t *testing.T) {
	srv := engine.NewServer(engine.DefaultConfig())
	if got := portSuffix(srv); got != ":4545" {
		t.Errorf("portSuffix before start = %q, want :4545", got)
	}
}

func TestCountSummary(t *testing.T) {
	tests := []struct {
		doubles int
		proxies int
		want    string
	}{
		{2, 1, "2 doubles, 1 proxies"},
		{0, 3, "3 proxies"},
		{4, 0, "4 doubles"},
		{0, 0, "0 doubles"},
	}

	for _, tt := range tests {
		if got := countSummary(tt.doubles, tt.proxies); got != tt.want {
			t.Errorf("countSummary(%d, %d) = %q, want %q", tt.doubles, tt.proxies, got, tt.want)
		}
	}
}
