// Package output holds the small formatting helpers the CLI commands
// share.
package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSON writes indented JSON to stdout.
func JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Warn prints a warning to stderr without failing the command.
func Warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
