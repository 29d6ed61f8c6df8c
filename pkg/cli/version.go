package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/dmrschmidt/RestSpy/pkg/cli/internal/output"
)

// VersionOutput is the JSON shape of the version command.
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show restspy version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := versionInfo()
		if jsonOutput {
			return output.JSON(out)
		}
		fmt.Printf("restspy %s (%s, %s)\n", out.Version, out.Commit, out.Date)
		fmt.Printf("%s %s/%s\n", out.Go, out.OS, out.Arch)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// versionInfo merges the ldflags-injected values with whatever the Go
// toolchain stamped into the binary, preferring the explicit values.
func versionInfo() VersionOutput {
	version := Version
	commit := Commit
	date := BuildDate

	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "dev" && info.Main.Version != "" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "none" {
					commit = setting.Value
				}
			case "vcs.time":
				if date == "unknown" {
					date = setting.Value
				}
			case "vcs.modified":
				if setting.Value == "true" {
					commit += "-dirty"
				}
			}
		}
	}

	return VersionOutput{
		Version: version,
		Commit:  commit,
		Date:    date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}
