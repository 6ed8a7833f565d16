package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

const (
	replPrompt         = "sqlscope> "
	replContinuePrompt = "    ...> "
)

// replModes lists what the REPL prints for each statement.
var replModes = []string{"tree", "regen", "params", "tokens", "format"}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive SQL inspection shell",
		Long: `Start an interactive shell that parses each statement you enter.

Statements end with a semicolon and may span several lines. The .mode
command picks what is printed: the syntax tree, the regenerated text, the
bind parameters, the token stream or the formatted text. Parses are cached
for the life of the session.`,
		Example: `  sqlscope repl
  sqlscope repl --persist`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd)
		},
	}
}

// replSession holds REPL state that outlives one statement.
type replSession struct {
	cmdCtx *CommandContext
	cache  *cache.Cache
	mode   string
}

func newREPLSession(cmdCtx *CommandContext, c *cache.Cache) *replSession {
	return &replSession{cmdCtx: cmdCtx, cache: c, mode: "tree"}
}

func runREPL(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	c, cleanup, err := cmdCtx.OpenCache("repl")
	if err != nil {
		return err
	}
	defer cleanup()

	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.Cache.StatePath), "repl_history")

	items := make([]readline.PrefixCompleterInterface, 0, len(replModes))
	for _, m := range replModes {
		items = append(items, readline.PcItem(m))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      replPrompt,
		HistoryFile: historyFile,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(".help"),
			readline.PcItem(".mode", items...),
			readline.PcItem(".stats"),
			readline.PcItem(".clear"),
			readline.PcItem(".quit"),
			readline.PcItem(".exit"),
		),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s := newREPLSession(cmdCtx, c)
	r := cmdCtx.Renderer
	r.Println("sqlscope REPL")
	r.Println("Type .help for commands, .quit to exit")
	r.Println("")

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if buf.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			if quit := s.command(trimmed); quit {
				break
			}
			continue
		}

		buf.WriteString(line)
		if !strings.HasSuffix(trimmed, ";") {
			buf.WriteString("\n")
			rl.SetPrompt(replContinuePrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		sql := buf.String()
		buf.Reset()
		if err := s.eval(cmd.Context(), sql); err != nil {
			return err
		}
		r.Println("")
	}
	return nil
}

// command runs a dot-command and reports whether the session should end.
func (s *replSession) command(line string) bool {
	r := s.cmdCtx.Renderer
	parts := strings.Fields(line)

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printREPLHelp(r.Writer())
	case ".mode":
		if len(parts) < 2 {
			r.Println("mode: " + s.mode)
			break
		}
		if !validREPLMode(parts[1]) {
			r.Error(fmt.Sprintf("unknown mode %q (want %s)", parts[1], strings.Join(replModes, ", ")))
			break
		}
		s.mode = parts[1]
	case ".stats":
		st := s.cache.Stats()
		r.Println(fmt.Sprintf("entries=%d hits=%d misses=%d shared=%d evictions=%d",
			st.Entries, st.Hits, st.Misses, st.Shared, st.Evictions))
	case ".clear":
		r.Printf("\033[H\033[2J")
	default:
		r.Error(fmt.Sprintf("unknown command %s (type .help for commands)", parts[0]))
	}
	return false
}

func validREPLMode(m string) bool {
	for _, v := range replModes {
		if v == m {
			return true
		}
	}
	return false
}

// eval prints one input in the current mode. Faults are printed, not
// returned; the error is for cancellation only.
func (s *replSession) eval(ctx context.Context, sql string) error {
	r := s.cmdCtx.Renderer

	switch s.mode {
	case "tokens":
		toks, err := lexer.Tokenize(sql, s.cmdCtx.Rule)
		infos := tokenInfos(toks, false)
		rows := make([][]any, len(infos))
		for i, t := range infos {
			rows[i] = []any{t.Kind, t.Subkind, fmt.Sprintf("%q", t.Text), fmt.Sprintf("%d:%d", t.Line, t.Column)}
		}
		r.Table([]string{"Kind", "Subkind", "Text", "Pos"}, rows)
		if err != nil {
			renderFault(r, "<repl>", err)
		}
		return nil
	case "format":
		out, err := s.cmdCtx.Formatter().Format(sql)
		if err != nil {
			renderFault(r, "<repl>", err)
			return nil
		}
		r.Println(strings.TrimRight(out, "\n"))
		return nil
	}

	e, err := s.cache.Get(ctx, sql)
	if err != nil {
		return err
	}
	if e.Err != nil {
		renderFault(r, "<repl>", e.Err)
		return nil
	}

	switch s.mode {
	case "regen":
		r.Println(e.Regenerated)
	case "params":
		res := output.ParamsOutput{Source: "<repl>", Params: e.Params}
		renderParams(r, "<repl>", false, res)
	default:
		var buf bytes.Buffer
		_ = visitor.Print(&buf, e.Tree)
		r.Printf("%s", buf.String())
	}
	return nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .mode [name]    Show or set the output: tree, regen, params, tokens, format
  .stats          Show statement cache counters
  .clear          Clear the screen
  .quit / .exit   Exit the REPL

Tips:
  - Statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Ctrl-C discards the statement being typed
`
	_, _ = fmt.Fprintln(w, help)
}
