package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/internal/config"
	"github.com/leapstack-labs/sqlscope/internal/state"
	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Rule     *token.Rule
}

// NewCommandContext builds the context from the config and logger stored
// on the command by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	mode := output.Mode(cfg.Output)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
		Rule:     cfg.Parser.Rule(),
	}
}

// Formatter returns a formatter for the configured rule.
func (c *CommandContext) Formatter() *format.Formatter {
	return format.New(c.Cfg.Format, c.Rule)
}

// OpenStore opens the statement catalog at the configured path.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.Cache.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open statement catalog: %w", err)
	}
	return store, nil
}

// OpenCache creates the statement cache, backed by the catalog when
// persistence is enabled. The cleanup function must be called.
func (c *CommandContext) OpenCache(source string) (*cache.Cache, func(), error) {
	opts := cache.Options{
		MaxEntries: c.Cfg.Cache.MaxEntries,
		Rule:       c.Rule,
		Source:     source,
		Logger:     c.Logger,
	}
	cleanup := func() {}
	if c.Cfg.Cache.Persist {
		store, err := c.OpenStore()
		if err != nil {
			return nil, nil, err
		}
		opts.Store = store
		cleanup = func() { _ = store.Close() }
	}
	return cache.New(opts), cleanup, nil
}

// input is one SQL source named on the command line.
type input struct {
	Name string
	SQL  string
}

// readInputs reads each named file, or stdin when there are none or the
// name is "-". A non-empty inline string takes the place of all of them.
func readInputs(cmd *cobra.Command, args []string, inline string) ([]input, error) {
	if inline != "" {
		return []input{{Name: "<inline>", SQL: inline}}, nil
	}
	if len(args) == 0 {
		args = []string{"-"}
	}
	inputs := make([]input, 0, len(args))
	for _, name := range args {
		if name == "-" {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			inputs = append(inputs, input{Name: "<stdin>", SQL: string(b)})
			continue
		}
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		inputs = append(inputs, input{Name: name, SQL: string(b)})
	}
	return inputs, nil
}

// isSQLFile reports whether path has a .sql extension.
func isSQLFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".sql")
}

// faultError summarizes inputs that failed.
func faultError(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d inputs failed", failed, total)
}

// renderFault writes a located fault to the diagnostic writer.
func renderFault(r *output.Renderer, name string, err error) {
	f := output.NewFault(err)
	if f.Line > 0 {
		r.Error(fmt.Sprintf("%s:%d:%d: %s", name, f.Line, f.Column, f.Message))
		return
	}
	r.Error(fmt.Sprintf("%s: %s", name, f.Message))
}
