package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/internal/state"
)

// CatalogOptions holds options for the catalog command.
type CatalogOptions struct {
	Limit int
	Keep  int
	SQL   string
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	opts := &CatalogOptions{}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the persistent statement catalog",
		Long: `Inspect and maintain the SQLite statement catalog.

The catalog records every distinct statement parsed with --persist (or
cache.persist in sqlscope.yaml): its regenerated text, bind parameters
and any parse fault. Statements are keyed by the SHA-256 of their text.`,
		Example: `  # Most recently seen statements
  sqlscope catalog list --limit 20

  # Show one statement
  sqlscope catalog show 3f2a...

  # Catalog a directory of queries
  sqlscope catalog add queries/*.sql

  # Keep only the 500 most recent
  sqlscope catalog prune --keep 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalogList(cmd, opts)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List cataloged statements, most recently seen first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalogList(cmd, opts)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "Maximum statements to list (0 for all)")

	show := &cobra.Command{
		Use:   "show <hash>",
		Short: "Show a cataloged statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogShow(cmd, args[0])
		},
	}

	del := &cobra.Command{
		Use:     "delete <hash>",
		Aliases: []string{"rm"},
		Short:   "Remove a statement from the catalog",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogDelete(cmd, args[0])
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove all but the most recently seen statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalogPrune(cmd, opts)
		},
	}
	prune.Flags().IntVar(&opts.Keep, "keep", 1000, "Number of statements to keep")

	add := &cobra.Command{
		Use:   "add [file...]",
		Short: "Parse SQL and record it in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogAdd(cmd, args, opts)
		},
	}
	add.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to catalog instead of files")

	cmd.AddCommand(list, show, del, prune, add)
	return cmd
}

// shortHash abbreviates a statement hash for tables.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// oneLine collapses whitespace and truncates s for table cells.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > width {
		return s[:width-3] + "..."
	}
	return s
}

func runCatalogList(cmd *cobra.Command, opts *CatalogOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stmts, err := store.ListStatements(cmd.Context(), opts.Limit)
	if err != nil {
		return err
	}
	if stmts == nil {
		stmts = []*state.Statement{}
	}

	if r.Structured() {
		return r.Structure(stmts)
	}
	if len(stmts) == 0 {
		r.Muted("catalog is empty: " + store.Path())
		return nil
	}

	rows := make([][]any, 0, len(stmts))
	for _, st := range stmts {
		status := "ok"
		if st.Fault != "" {
			status = "fault"
		}
		rows = append(rows, []any{
			shortHash(st.Hash), st.Hits, len(st.Params), status,
			st.LastSeenAt.Local().Format("2006-01-02 15:04"), oneLine(st.SQL, 48),
		})
	}
	r.Table([]string{"Hash", "Hits", "Params", "Status", "Last seen", "SQL"}, rows)
	return nil
}

func runCatalogShow(cmd *cobra.Command, hash string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st, err := store.GetStatement(cmd.Context(), hash)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no statement with hash %s", hash)
	}
	if err != nil {
		return err
	}

	if r.Structured() {
		return r.Structure(st)
	}
	r.Header(2, "Statement "+shortHash(st.Hash))
	r.Println(output.FormatKeyValue("Hash", st.Hash))
	r.Println(output.FormatKeyValue("Source", st.Source))
	r.Println(output.FormatKeyValue("Hits", fmt.Sprint(st.Hits)))
	r.Println(output.FormatKeyValue("First seen", st.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	r.Println(output.FormatKeyValue("Last seen", st.LastSeenAt.Local().Format("2006-01-02 15:04:05")))
	if len(st.Params) > 0 {
		r.Println(output.FormatKeyValue("Params", strings.Join(st.Params, ", ")))
	}
	if st.Fault != "" {
		r.Println(output.FormatKeyValue("Fault", st.Fault))
	}
	r.Println("")
	r.Println(output.FormatCodeBlock("sql", strings.TrimRight(st.SQL, "\n")))
	if st.Regenerated != "" && st.Regenerated != st.SQL {
		r.Println(output.FormatCodeBlock("sql", strings.TrimRight(st.Regenerated, "\n")))
	}
	return nil
}

func runCatalogDelete(cmd *cobra.Command, hash string) error {
	cmdCtx := NewCommandContext(cmd)

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteStatement(cmd.Context(), hash); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no statement with hash %s", hash)
		}
		return err
	}
	cmdCtx.Renderer.Success("deleted " + shortHash(hash))
	return nil
}

func runCatalogPrune(cmd *cobra.Command, opts *CatalogOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.Prune(cmd.Context(), opts.Keep)
	if err != nil {
		return err
	}
	if r.Structured() {
		return r.Structure(map[string]int64{"removed": n})
	}
	r.Success(fmt.Sprintf("removed %d statements", n))
	return nil
}

func runCatalogAdd(cmd *cobra.Command, args []string, opts *CatalogOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	inputs, err := readInputs(cmd, args, opts.SQL)
	if err != nil {
		return err
	}
	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	c := cache.New(cache.Options{
		MaxEntries: cmdCtx.Cfg.Cache.MaxEntries,
		Rule:       cmdCtx.Rule,
		Store:      store,
		Source:     "catalog",
		Logger:     cmdCtx.Logger,
	})

	type added struct {
		Source string        `json:"source" yaml:"source"`
		Hash   string        `json:"hash" yaml:"hash"`
		Fault  *output.Fault `json:"fault,omitempty" yaml:"fault,omitempty"`
	}
	results := make([]added, 0, len(inputs))
	for _, in := range inputs {
		e, err := c.Get(cmd.Context(), in.SQL)
		if err != nil {
			return err
		}
		results = append(results, added{Source: in.Name, Hash: e.Key, Fault: output.NewFault(e.Err)})
		if r.Structured() {
			continue
		}
		if e.Err != nil {
			r.StatusLine(in.Name, "fault", shortHash(e.Key))
			continue
		}
		r.StatusLine(in.Name, "ok", shortHash(e.Key))
	}

	if r.Structured() {
		return structureOne(r, results)
	}
	return nil
}
