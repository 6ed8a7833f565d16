package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/lsp"
)

// NewLSPCommand creates the lsp command.
func NewLSPCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the LSP server for editor integration.

The server communicates over stdin/stdout using JSON-RPC. It publishes
parse faults as diagnostics and answers formatting, hover, completion
and quick-fix requests for SQL documents. Logs go to stderr.`,
		Example: `  # Start LSP server (usually called by an editor)
  sqlscope lsp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLSP(cmd, version)
		},
	}

	return cmd
}

func runLSP(cmd *cobra.Command, version string) error {
	cmdCtx := NewCommandContext(cmd)

	c, cleanup, err := cmdCtx.OpenCache("lsp")
	if err != nil {
		return err
	}
	defer cleanup()

	server := lsp.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), lsp.Options{
		Rule:    cmdCtx.Rule,
		Format:  cmdCtx.Cfg.Format,
		Cache:   c,
		Version: version,
		Logger:  cmdCtx.Logger,
	})
	return server.Run(cmd.Context())
}
