package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmrschmidt/RestSpy/pkg/cli/internal/output"
	"github.com/dmrschmidt/RestSpy/pkg/config"
	"github.com/dmrschmidt/RestSpy/pkg/engine"
	"github.com/dmrschmidt/RestSpy/pkg/logging"
)

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

// serveFlags holds the parsed command line flags for serve.
type serveFlags struct {
	port         int
	configFile   string
	doubles      []string
	watch        bool
	spyCapacity  int
	readTimeout  int
	writeTimeout int
	logFile      string
}

func defaultServeFlags() *serveFlags {
	return &serveFlags{
		port:         engine.DefaultPort,
		readTimeout:  30,
		writeTimeout: 30,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the test-double server (foreground)",
	Long: `Start the server and block until interrupted.

Doubles and proxies can be preloaded from a config file (--config) and
from double files matched by globs (--doubles), and are otherwise
registered at runtime over the control API. With --watch, edits to
those files are picked up without a restart. Explicit flags override
values from the config file.`,
	Example: `  # Start with defaults on port 4545
  restspy serve

  # Start on a custom port with a config file
  restspy serve -p 3000 --config restspy.yaml

  # Preload doubles from files and reload on change
  restspy serve --doubles 'doubles/**/*.yaml' --watch

  # Keep a JSON copy of the logs
  restspy serve --log-file restspy.log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(&serveFlagVals, cmd.Flags().Changed)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	def := defaultServeFlags()

	serveCmd.Flags().IntVarP(&f.port, "port", "p", def.port, "HTTP server port")
	serveCmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to server configuration file")
	serveCmd.Flags().StringArrayVar(&f.doubles, "doubles", nil, "Glob of double files to preload, repeatable")
	serveCmd.Flags().BoolVar(&f.watch, "watch", false, "Reload config and double files when they change")
	serveCmd.Flags().IntVar(&f.spyCapacity, "spy-capacity", 0, "Recorded exchanges to keep (0 = default)")
	serveCmd.Flags().IntVar(&f.readTimeout, "read-timeout", def.readTimeout, "Read timeout in seconds")
	serveCmd.Flags().IntVar(&f.writeTimeout, "write-timeout", def.writeTimeout, "Write timeout in seconds")
	serveCmd.Flags().StringVar(&f.logFile, "log-file", "", "Append JSON logs to this file as well")
}

// runServe is the core serve logic, shared with the root -p shorthand.
func runServe(f *serveFlags, changed func(string) bool) error {
	cfg, err := loadServeConfig(f)
	if err != nil {
		return err
	}

	log, closeLog, err := buildServeLogger(f, cfg, changed)
	if err != nil {
		return err
	}
	defer closeLog()

	engCfg := buildEngineConfig(cfg, f, changed)
	srv := engine.NewServer(engCfg, engine.WithLogger(log.With("component", "engine")))

	if err := srv.Start(); err != nil {
		if isAddrInUseError(err) {
			return fmt.Errorf("port %d is already in use, try a different port with --port", engCfg.Port)
		}
		return fmt.Errorf("starting server: %w", err)
	}

	if err := config.Apply(cfg, srv); err != nil {
		_ = srv.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := startWatcher(ctx, f, srv, log)
	if err != nil {
		_ = srv.Stop()
		return err
	}

	printStartupMessage(srv, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	cancel()
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			output.Warn("stopping watcher: %v", err)
		}
	}
	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	fmt.Println("Server stopped")
	return nil
}

// loadServeConfig loads the config file and any double files. With
// neither given it returns an empty config, which is valid: everything
// can still be registered at runtime.
func loadServeConfig(f *serveFlags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if len(f.doubles) > 0 {
		extra, err := config.LoadDoubleFiles(f.doubles)
		if err != nil {
			return nil, err
		}
		cfg.Merge(extra)
	}
	return cfg, nil
}

// buildServeLogger resolves the log settings (explicit flags beat the
// config file) and optionally tees JSON logs into a file.
func buildServeLogger(f *serveFlags, cfg *config.Config, changed func(string) bool) (*slog.Logger, func(), error) {
	level := logLevel
	if !changed("log-level") && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	format := logFormat
	if !changed("log-format") && cfg.LogFormat != "" {
		format = cfg.LogFormat
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(level),
		Format: logging.ParseFormat(format),
	})

	if f.logFile == "" {
		return log, func() {}, nil
	}

	file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: logging.ParseLevel(level)})
	log = slog.New(logging.NewMultiHandler(log.Handler(), fileHandler))
	return log, func() { _ = file.Close() }, nil
}

// buildEngineConfig layers the config file over the engine defaults,
// then explicit flags over both.
func buildEngineConfig(cfg *config.Config, f *serveFlags, changed func(string) bool) *engine.Config {
	ec := engine.DefaultConfig()

	if cfg.Port != 0 {
		ec.Port = cfg.Port
	}
	if changed("port") {
		ec.Port = f.port
	}

	if cfg.ReadTimeout != 0 {
		ec.ReadTimeout = time.Duration(cfg.ReadTimeout) * time.Second
	}
	if changed("read-timeout") {
		ec.ReadTimeout = time.Duration(f.readTimeout) * time.Second
	}

	if cfg.WriteTimeout != 0 {
		ec.WriteTimeout = time.Duration(cfg.WriteTimeout) * time.Second
	}
	if changed("write-timeout") {
		ec.WriteTimeout = time.Duration(f.writeTimeout) * time.Second
	}

	if cfg.SpyCapacity != 0 {
		ec.SpyCapacity = cfg.SpyCapacity
	}
	if changed("spy-capacity") && f.spyCapacity > 0 {
		ec.SpyCapacity = f.spyCapacity
	}

	return ec
}

// startWatcher wires --watch: on every file change the config and
// double files are reloaded and replace the registered set wholesale.
// Returns nil without error when --watch is off or nothing is watchable.
func startWatcher(ctx context.Context, f *serveFlags, srv *engine.Server, log *slog.Logger) (*config.Watcher, error) {
	if !f.watch {
		return nil, nil
	}

	paths := config.WatchPaths(f.configFile, f.doubles)
	if len(paths) == 0 {
		log.Warn("--watch given but no --config or --doubles to watch")
		return nil, nil
	}

	w, err := config.NewWatcher(paths, config.WithWatcherLogger(log.With("component", "watcher")))
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}

	reload := func() error {
		cfg, err := loadServeConfig(f)
		if err != nil {
			return err
		}
		if err := config.Apply(cfg, srv); err != nil {
			return err
		}
		log.Info("configuration reloaded", "doubles", len(cfg.Doubles), "proxies", len(cfg.Proxies))
		return nil
	}

	go func() {
		if err := w.Watch(ctx, reload); err != nil && ctx.Err() == nil {
			log.Error("config watcher stopped", "error", err)
		}
	}()

	log.Info("watching for configuration changes", "paths", paths)
	return w, nil
}

// isAddrInUseError reports whether err is a failed bind on a busy port.
func isAddrInUseError(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func printStartupMessage(srv *engine.Server, cfg *config.Config) {
	base := fmt.Sprintf("http://localhost%s", portSuffix(srv))
	doubles := len(cfg.Doubles)
	proxies := len(cfg.Proxies)

	switch {
	case doubles == 0 && proxies == 0:
		fmt.Println("restspy server started")
	default:
		fmt.Printf("restspy server started (%s)\n", countSummary(doubles, proxies))
	}
	fmt.Println()
	fmt.Printf("  Base URL:    %s\n", base)
	fmt.Printf("  Control API: %s/doubles\n", base)
	fmt.Printf("  Metrics:     %s/spy/metrics\n", base)
	fmt.Println()

	if doubles == 0 && proxies == 0 {
		fmt.Println("No doubles configured. Quick start:")
		fmt.Println()
		fmt.Printf("  restspy add --pattern '/hello' --body '{\"message\": \"hi\"}'\n")
		fmt.Printf("  curl %s/hello\n", base)
		fmt.Println()
	}
	fmt.Println("Press Ctrl+C to stop")
}

// portSuffix renders ":4545" from the bound listener, falling back to
// the configured port before the listener reports one.
func portSuffix(srv *engine.Server) string {
	addr := srv.Addr()
	if addr == "" {
		return fmt.Sprintf(":%d", srv.Port())
	}
	// Addr is of the form "[::]:4545"; keep everything from the last colon.
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return addr
}

func countSummary(doubles, proxies int) string {
	switch {
	case doubles > 0 && proxies > 0:
		return fmt.Sprintf("%d doubles, %d proxies", doubles, proxies)
	case proxies > 0:
		return fmt.Sprintf("%d proxies", proxies)
	default:
		return fmt.Sprintf("%d doubles", doubles)
	}
}
