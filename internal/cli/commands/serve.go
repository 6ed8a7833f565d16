package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parser and formatter over HTTP",
		Long: `Start an HTTP server exposing the parser and formatter as a JSON API.

Endpoints:
  POST /v1/parse     parse SQL, optionally locating a byte offset
  POST /v1/format    format SQL, with optional rule overrides
  POST /v1/unformat  collapse SQL onto one line
  POST /v1/params    list bind parameters and the positional rewrite
  GET  /v1/stats     statement cache counters
  GET  /v1/events    server-sent events for --watch-dir reformatting
  GET  /healthz      liveness probe

SQL faults are answered with 422 and a located fault record.`,
		Example: `  # Serve on the default address
  sqlscope serve

  # Serve on localhost and reformat ./queries as it changes
  sqlscope serve --addr 127.0.0.1:9000 --watch-dir queries

  # Keep parses across restarts
  sqlscope serve --persist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :8780)")
	cmd.Flags().String("watch-dir", "", "Reformat .sql files under this directory as they change")
	addFormatFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)

	c, cleanup, err := cmdCtx.OpenCache("serve")
	if err != nil {
		return err
	}
	defer cleanup()
	if _, err := c.Warm(cmd.Context(), cmdCtx.Cfg.Cache.MaxEntries); err != nil {
		cmdCtx.Logger.Warn("failed to warm statement cache", "error", err)
	}

	srv := server.NewServer(server.Config{
		Addr:     cmdCtx.Cfg.Server.Addr,
		Cache:    c,
		Format:   cmdCtx.Cfg.Format,
		Rule:     cmdCtx.Rule,
		WatchDir: cmdCtx.Cfg.Server.WatchDir,
		Logger:   cmdCtx.Logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx)
}
