package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dmrschmidt/RestSpy/pkg/cli/internal/output"
	"github.com/dmrschmidt/RestSpy/pkg/spy"
)

// addTimeout bounds the control API round trip.
const addTimeout = 10 * time.Second

var addFlagVals addFlags

type addFlags struct {
	server  string
	pattern string
	status  int
	body    string
	headers []string
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a double on a running server",
	Long: `Register a double on a running server over its control API.

When --pattern is omitted an interactive form collects the fields.`,
	Example: `  # Register a double on the default server
  restspy add --pattern '/api/users/.*' --body '{"users": []}'

  # With status and headers
  restspy add --pattern '/health' --status 503 --header 'Retry-After: 30'

  # Against a server on another port
  restspy add --server http://localhost:3000 --pattern '/ping' --body pong

  # Interactive
  restspy add`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flags intentionally omitted means the user wants the form.
		if !cmd.Flags().Changed("pattern") {
			if err := runAddForm(&addFlagVals); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), addTimeout)
		defer cancel()

		id, err := registerDouble(ctx, &addFlagVals)
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(map[string]string{"id": id})
		}
		fmt.Printf("Registered double %s for pattern %s\n", id, addFlagVals.pattern)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)

	f := &addFlagVals
	addCmd.Flags().StringVar(&f.server, "server", "http://localhost:4545", "Base URL of the running server")
	addCmd.Flags().StringVar(&f.pattern, "pattern", "", "Endpoint pattern to match, e.g. '/api/users/.*'")
	addCmd.Flags().IntVarP(&f.status, "status", "s", 200, "Response status code")
	addCmd.Flags().StringVarP(&f.body, "body", "b", "", "Response body")
	addCmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "Response header (key: value), repeatable")
}

// runAddForm fills in the add flags interactively.
func runAddForm(f *addFlags) error {
	statusStr := strconv.Itoa(f.status)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What endpoint pattern should the double match?").
				Placeholder("/api/v1/users/.*").
				Value(&f.pattern).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("pattern is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("What status code should it return?").
				Value(&statusStr).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil {
						return errors.New("status must be a number")
					}
					if n < 100 || n > 599 {
						return errors.New("status must be between 100 and 599")
					}
					return nil
				}),
			huh.NewText().
				Title("Response body").
				Placeholder(`{"status": "ok"}`).
				Value(&f.body),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}
	f.status, _ = strconv.Atoi(statusStr)
	return nil
}

// registerDouble sends the double to the server and returns its id.
func registerDouble(ctx context.Context, f *addFlags) (string, error) {
	opts := []spy.DoubleOption{spy.WithStatus(f.status)}
	for _, h := range f.headers {
		name, value, err := splitHeader(h)
		if err != nil {
			return "", err
		}
		opts = append(opts, spy.WithHeader(name, value))
	}

	sp, err := spy.OnExternalServer(f.server)
	if err != nil {
		return "", err
	}
	return sp.Double(ctx, f.pattern, f.body, opts...)
}

// splitHeader parses "Name: value" (the colon may be unspaced).
func splitHeader(h string) (string, string, error) {
	name, value, ok := strings.Cut(h, ":")
	if !ok {
		return "", "", fmt.Errorf("malformed header %q, want 'Name: value'", h)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("malformed header %q, want 'Name: value'", h)
	}
	return name, strings.TrimSpace(value), nil
}
