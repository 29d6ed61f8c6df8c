package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// Load reads and validates a config file. Environment references in
// the form ${VAR} or ${VAR:-default} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return data, nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references with
// environment values. Unset variables without a default expand to "".
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if val := os.Getenv(submatch[1]); val != "" {
			return val
		}
		if len(submatch) >= 3 {
			return submatch[2]
		}
		return ""
	})
}

// LoadDoubleFiles expands the given glob patterns (** is supported),
// loads every matching YAML file, and merges their doubles and proxies.
// Matches load in sorted path order, so the result is deterministic no
// matter what order the filesystem returns them in. Server settings in
// matched files are validated but not merged. A glob matching nothing
// is not an error.
func LoadDoubleFiles(globs []string) (*Config, error) {
	merged := &Config{}
	for _, glob := range globs {
		matches, err := expandGlob(glob)
		if err != nil {
			return nil, fmt.Errorf("expanding glob %q: %w", glob, err)
		}
		sort.Strings(matches)

		for _, path := range matches {
			cfg, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
			merged.Merge(cfg)
		}
	}
	return merged, nil
}

// expandGlob expands a glob pattern to matching file paths, using
// doublestar when the pattern needs ** support.
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}

// WatchPaths derives the filesystem paths a watcher should cover for a
// config file and a set of double-file globs: the file itself plus each
// glob's fixed directory prefix.
func WatchPaths(configPath string, globs []string) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	if configPath != "" {
		add(configPath)
	}
	for _, g := range globs {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(g))
		add(filepath.FromSlash(base))
	}
	return paths
}
