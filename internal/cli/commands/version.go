package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cli/output"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(info output.VersionOutput) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display sqlscope version and build information.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if info.GoVersion == "" {
				info.GoVersion = runtime.Version()
			}
			r := NewCommandContext(cmd).Renderer
			if r.Structured() {
				return r.Structure(info)
			}
			r.Printf("sqlscope v%s\n", info.Version)
			fields := [][2]string{{"Commit", info.Commit}, {"Built", info.BuildDate}, {"Go", info.GoVersion}}
			for _, f := range fields {
				if r.EffectiveMode() == output.ModeMarkdown {
					r.Println(output.FormatKeyValue(f[0], f[1]))
					continue
				}
				r.Printf("  %-7s %s\n", f[0]+":", f[1])
			}
			return nil
		},
	}
}
