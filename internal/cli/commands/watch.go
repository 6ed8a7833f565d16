package commands

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/internal/server"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Check    bool
	All      bool
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Reformat .sql files as they change",
		Long: `Watch a directory tree and reformat each .sql file when it is written.

Files are only rewritten when formatting changes them. With --check the
files are left alone and the ones that would change are reported.
The directory defaults to server.watch_dir, then the current directory.`,
		Example: `  # Reformat SQL under ./queries on save
  sqlscope watch queries

  # Format everything once, then keep watching
  sqlscope watch --all

  # Report drift without writing
  sqlscope watch --check`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "Report files that would change without writing them")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Process every .sql file once before watching")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", server.DefaultDebounce, "Quiet period before a changed file is processed")
	addFormatFlags(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, args []string, opts *WatchOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	dir := cmdCtx.Cfg.Server.WatchDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		dir = "."
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", dir)
	}

	f := cmdCtx.Formatter()
	process := server.FormatFile
	if opts.Check {
		process = server.CheckFile
	}

	var mu sync.Mutex
	handle := func(path string) {
		ev := process(f, path)
		mu.Lock()
		defer mu.Unlock()
		renderEvent(r, ev, opts.Check)
	}

	if opts.All {
		if err := walkSQL(dir, handle); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := server.NewWatcher(dir, handle, cmdCtx.Logger)
	w.SetDebounce(opts.Debounce)
	if !r.Structured() {
		r.Muted(fmt.Sprintf("watching %s (ctrl-c to stop)", dir))
	}
	return w.Run(ctx)
}

// renderEvent reports one processed file. Unchanged files are only shown
// in structured output.
func renderEvent(r *output.Renderer, ev server.Event, check bool) {
	if r.Structured() {
		_ = r.Structure(ev)
		return
	}
	switch {
	case ev.Fault != nil:
		r.StatusLine(ev.Path, "fault", ev.Fault.Message)
	case ev.Changed && check:
		r.StatusLine(ev.Path, "warning", "would change")
	case ev.Changed:
		r.StatusLine(ev.Path, "ok", "formatted")
	}
}

// walkSQL calls fn for every .sql file under dir.
func walkSQL(dir string, fn func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isSQLFile(path) {
			fn(path)
		}
		return nil
	})
}
