package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "sqlscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("keyword-case", "", "")
	fs.Int("width", 0, "")
	fs.String("state", "", "")
	fs.Bool("verbose", false, "")
	fs.String("output", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, format.DefaultRule(), cfg.Format)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, DefaultMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, DefaultStateFile, cfg.Cache.StatePath)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Empty(t, cfg.Source)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, `
log_level: debug
format:
  convert_keyword: lower
  out_newline_code: crlf
  out_sql_separator: semicolon
  width: 60
parser:
  functions: [my_func]
cache:
  max_entries: 10
`)
	t.Setenv("SQLSCOPE_FORMAT__WIDTH", "70")
	t.Setenv("SQLSCOPE_CACHE__PERSIST", "true")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--keyword-case", "capitalize", "--state", "x.db"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "sqlscope.yaml"), cfg.Source)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, format.CaseCapitalize, cfg.Format.ConvertKeyword, "flag beats file")
	assert.Equal(t, 70, cfg.Format.Width, "env beats file")
	assert.Equal(t, format.NewLineCRLF, cfg.Format.OutNewLineCode)
	assert.Equal(t, format.SeparatorSemicolon, cfg.Format.OutSQLSeparator)
	assert.True(t, cfg.Format.NewLineBeforeAndOr, "untouched defaults survive")
	assert.Equal(t, 10, cfg.Cache.MaxEntries)
	assert.True(t, cfg.Cache.Persist)
	assert.Equal(t, "x.db", cfg.Cache.StatePath)
	assert.True(t, cfg.Parser.Rule().IsFunction("MY_FUNC"))
}

func TestLoad_UnchangedFlagsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())
	fs := testFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Format.Width)
}

func TestLoad_SearchesUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "output: json\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		errPart string
	}{
		{"bad enum", "format:\n  convert_keyword: shout\n", `invalid case "shout"`},
		{"bad output", "output: html\n", "invalid output"},
		{"bad width", "format:\n  word_break: true\n  width: 0\n", "format.width"},
		{"bad indent", "format:\n  indent_string: ab\n", "indent_string"},
		{"bad level", "log_level: loud\n", "invalid log_level"},
		{"negative cache", "cache:\n  max_entries: -1\n", "max_entries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			path := writeConfig(t, dir, tt.body)

			_, err := Load(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("nope.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestParserConfig_Rule(t *testing.T) {
	assert.True(t, ParserConfig{}.Rule().IsFunction("COUNT"))

	r := ParserConfig{Compounds: []string{"qualify by"}, Datatypes: []string{"jsonb"}}.Rule()
	assert.True(t, r.IsDatatype("JSONB"))
	assert.NotEmpty(t, r.Compounds("QUALIFY"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, GetLogger(ctx))
	assert.Equal(t, Default(), FromContext(ctx))

	cfg := Default()
	cfg.Output = "json"
	l := slog.New(slog.DiscardHandler)
	ctx = WithConfig(WithLogger(ctx, l), cfg)
	assert.Same(t, l, GetLogger(ctx))
	assert.Same(t, cfg, FromContext(ctx))
}

func TestNewLogger_Level(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	l := cfg.NewLogger(os.Stderr)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))

	cfg.Verbose = true
	l = cfg.NewLogger(os.Stderr)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}
