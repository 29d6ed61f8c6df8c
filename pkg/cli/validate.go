package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmrschmidt/RestSpy/pkg/config"
)

var validateFlagVals validateFlags

type validateFlags struct {
	configFile string
	doubles    []string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration files without starting a server",
	Long: `Load and validate a server configuration file and any double files,
reporting the first problem found. Exits non-zero when validation
fails, so it can gate a commit or a CI step.`,
	Example: `  # Validate the server config
  restspy validate --config restspy.yaml

  # Validate double files as well
  restspy validate --config restspy.yaml --doubles 'doubles/**/*.yaml'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(&validateFlagVals)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	f := &validateFlagVals
	validateCmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to server configuration file")
	validateCmd.Flags().StringArrayVar(&f.doubles, "doubles", nil, "Glob of double files to validate, repeatable")
}

func runValidate(f *validateFlags) error {
	if f.configFile == "" && len(f.doubles) == 0 {
		return errors.New("nothing to validate: pass --config or --doubles")
	}

	merged := &config.Config{}
	if f.configFile != "" {
		cfg, err := config.Load(f.configFile)
		if err != nil {
			return err
		}
		merged = cfg
	}
	if len(f.doubles) > 0 {
		cfg, err := config.LoadDoubleFiles(f.doubles)
		if err != nil {
			return err
		}
		merged.Merge(cfg)
	}

	fmt.Printf("Configuration is valid (%s).\n", countSummary(len(merged.Doubles), len(merged.Proxies)))
	return nil
}
