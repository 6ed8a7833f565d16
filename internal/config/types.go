// Package config provides configuration management for sqlscope.
//
// Configuration is layered with koanf: built-in defaults, then a
// sqlscope.yaml file, then SQLSCOPE_* environment variables, then command
// line flags that were explicitly set.
package config

import (
	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// Default configuration values.
const (
	DefaultLogLevel   = "info"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultMaxEntries = 1024
	DefaultStateFile  = ".sqlscope/catalog.db"
	DefaultAddr       = ":8780"
)

// Config holds all configuration options.
type Config struct {
	LogLevel string       `koanf:"log_level"`
	Verbose  bool         `koanf:"verbose"`
	Output   string       `koanf:"output"`
	Format   format.Rule  `koanf:"format"`
	Parser   ParserConfig `koanf:"parser"`
	Cache    CacheConfig  `koanf:"cache"`
	Server   ServerConfig `koanf:"server"`

	// Source is the config file that was loaded, empty when none was found.
	Source string `koanf:"-"`
}

// ParserConfig extends the built-in tokenizer vocabulary.
type ParserConfig struct {
	Keywords  []string `koanf:"keywords"`
	Functions []string `koanf:"functions"`
	Datatypes []string `koanf:"datatypes"`
	// Compounds are multi-word keywords written with single spaces.
	Compounds []string `koanf:"compounds"`
}

// Rule returns the token rule for this configuration. Without additions it
// is the shared default rule.
func (p ParserConfig) Rule() *token.Rule {
	if len(p.Keywords)+len(p.Functions)+len(p.Datatypes)+len(p.Compounds) == 0 {
		return token.DefaultRule()
	}
	r := token.DefaultRule().Clone()
	r.AddKeywords(p.Keywords...)
	r.AddFunctions(p.Functions...)
	r.AddDatatypes(p.Datatypes...)
	r.AddCompounds(p.Compounds...)
	return r
}

// CacheConfig configures the statement cache.
type CacheConfig struct {
	MaxEntries int    `koanf:"max_entries"`
	Persist    bool   `koanf:"persist"`
	StatePath  string `koanf:"state_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr"`
	// WatchDir, when set, is reformatted on change while serving.
	WatchDir string `koanf:"watch_dir"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Output:   DefaultOutput,
		Format:   format.DefaultRule(),
		Cache: CacheConfig{
			MaxEntries: DefaultMaxEntries,
			StatePath:  DefaultStateFile,
		},
		Server: ServerConfig{Addr: DefaultAddr},
	}
}
