// Package main provides tests for the sqlscope CLI.
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlscope/internal/cli"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
)

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestHelpCommand(t *testing.T) {
	stdout, _, err := run(t, "", "--help")
	require.NoError(t, err)

	for _, want := range []string{"parse", "regen", "params", "tokens", "format", "unformat", "repl", "watch", "serve", "lsp", "catalog", "version", "completion"} {
		assert.Contains(t, stdout, want)
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "", "version", "--output", "json")
	require.NoError(t, err)

	var out output.VersionOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, cli.Version, out.Version)
	assert.NotEmpty(t, out.GoVersion)
}

func TestCompletionCommand(t *testing.T) {
	stdout, _, err := run(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sqlscope")

	_, _, err = run(t, "", "completion", "tcsh")
	assert.Error(t, err)
}

func TestInvalidOutputFlag(t *testing.T) {
	_, _, err := run(t, "", "parse", "-e", "SELECT 1 FROM dual", "--output", "xml")
	assert.ErrorContains(t, err, "invalid output")
}

func TestFormatFlagsOverlayConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"defaults", nil, "SELECT\n    a\nFROM\n    t\n"},
		{"lower keywords", []string{"--keyword-case", "lower"}, "select\n    a\nfrom\n    t\n"},
		{"tab indent", []string{"--indent", "\t"}, "SELECT\n\ta\nFROM\n\tt\n"},
		{"comma first", []string{"--comma-first", "-e", "select a, b from t"}, "SELECT\n    a\n    , b\nFROM\n    t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"format", "--output", "text"}, tt.args...)
			stdin := "select a from t"
			stdout, _, err := run(t, stdin, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sqlscope.yaml"), []byte(`
format:
  convert_keyword: lower
  indent_string: "  "
`), 0o600))
	t.Chdir(dir)

	stdout, _, err := run(t, "select a from t", "format", "-o", "text")
	require.NoError(t, err)
	assert.Equal(t, "select\n  a\nfrom\n  t\n", stdout)

	t.Setenv("SQLSCOPE_FORMAT__CONVERT_KEYWORD", "upper")
	stdout, _, err = run(t, "select a from t", "format", "-o", "text")
	require.NoError(t, err)
	assert.Equal(t, "SELECT\n  a\nFROM\n  t\n", stdout)

	stdout, _, err = run(t, "select a from t", "format", "-o", "text", "--keyword-case", "capitalize")
	require.NoError(t, err)
	assert.Equal(t, "Select\n  a\nFrom\n  t\n", stdout)
}

func TestPersistAndCatalog(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "catalog.db")

	_, _, err := run(t, "SELECT a FROM t WHERE id = :id", "params", "--persist", "--state", statePath, "-o", "json")
	require.NoError(t, err)

	stdout, _, err := run(t, "", "catalog", "list", "--state", statePath, "-o", "json")
	require.NoError(t, err)

	var stmts []struct {
		SQL    string   `json:"sql"`
		Params []string `json:"params"`
		Source string   `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &stmts))
	require.Len(t, stmts, 1)
	assert.Equal(t, "SELECT a FROM t WHERE id = :id", stmts[0].SQL)
	assert.Equal(t, []string{"id"}, stmts[0].Params)
	assert.Equal(t, "params", stmts[0].Source)
}

func TestParseFaultExitsWithError(t *testing.T) {
	_, stderr, err := run(t, "SELECT a FROM t WHERE (a = 1", "parse", "-o", "text")
	require.Error(t, err)
	assert.Contains(t, stderr, "<stdin>:1:23")
	assert.Contains(t, stderr, "unclosed parenthesis")
}
