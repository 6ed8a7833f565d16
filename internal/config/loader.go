package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore descends into a section: SQLSCOPE_FORMAT__WIDTH=100.
const EnvPrefix = "SQLSCOPE_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var configFileNames = []string{"sqlscope.yaml", "sqlscope.yml", ".sqlscope.yaml"}

// flagKeys maps flag names to config keys where the two differ.
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"keyword-case": "format.convert_keyword",
	"name-case":    "format.convert_name",
	"indent":       "format.indent_string",
	"width":        "format.width",
	"word-break":   "format.word_break",
	"newline":      "format.out_newline_code",
	"separator":    "format.out_sql_separator",
	"comma-first":  "format.newline_before_comma",
	"strip":        "format.remove_comment",
	"state":        "cache.state_path",
	"persist":      "cache.persist",
	"addr":         "server.addr",
	"watch-dir":    "server.watch_dir",
}

// configExistsIn returns the config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// findConfigFile finds the config file to use.
// Priority: explicit path > nearest sqlscope.yaml at or above startDir.
func findConfigFile(explicit, startDir string) string {
	if explicit != "" {
		return explicit
	}
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if path := configExistsIn(dir); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func defaults() map[string]any {
	d := Default()
	r := d.Format
	return map[string]any{
		"log_level":                     d.LogLevel,
		"verbose":                       d.Verbose,
		"output":                        d.Output,
		"format.convert_keyword":        r.ConvertKeyword.String(),
		"format.convert_name":           r.ConvertName.String(),
		"format.indent_string":          r.IndentString,
		"format.newline_before_comma":   r.NewLineBeforeComma,
		"format.newline_before_and_or":  r.NewLineBeforeAndOr,
		"format.newline_datatype_paren": r.NewLineDataTypeParen,
		"format.newline_function_paren": r.NewLineFunctionParen,
		"format.decode_special_format":  r.DecodeSpecialFormat,
		"format.in_special_format":      r.InSpecialFormat,
		"format.between_special_format": r.BetweenSpecialFormat,
		"format.remove_comment":         r.RemoveComment,
		"format.remove_empty_line":      r.RemoveEmptyLine,
		"format.indent_empty_line":      r.IndentEmptyLine,
		"format.word_break":             r.WordBreak,
		"format.width":                  r.Width,
		"format.out_newline_code":       r.OutNewLineCode.String(),
		"format.out_sql_separator":      r.OutSQLSeparator.String(),
		"cache.max_entries":             d.Cache.MaxEntries,
		"cache.persist":                 d.Cache.Persist,
		"cache.state_path":              d.Cache.StatePath,
		"server.addr":                   d.Server.Addr,
		"server.watch_dir":              d.Server.WatchDir,
	}
}

// Load loads configuration from defaults, the config file, environment
// variables and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults. Only flags marked as changed are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	source := findConfigFile(cfgFile, cwd)
	if source != "" {
		if err := k.Load(file.Provider(source), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", source, err)
		}
	}

	// 3. Environment: SQLSCOPE_CACHE__MAX_ENTRIES -> cache.max_entries
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return nil, err
	}
	cfg.Source = source
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unmarshal decodes k into a Config. Enum options such as "upper" or
// "crlf" decode through their UnmarshalText methods.
func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Output {
	case "auto", "text", "markdown", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q (want auto, text, markdown, json or yaml)", c.Output)
	}
	if c.Format.WordBreak && c.Format.Width <= 0 {
		return fmt.Errorf("format.width must be positive when format.word_break is set, got %d", c.Format.Width)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}
	if strings.TrimSpace(c.Format.IndentString) != "" {
		return fmt.Errorf("format.indent_string must be whitespace, got %q", c.Format.IndentString)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
