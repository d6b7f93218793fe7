// Package config loads the compiler configuration from TOML.
package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/containerd/errdefs"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/logger"
	"github.com/GriffinCanCode/smplc/pkg/ssa"
)

// Config encapsulates the configuration of every compiler stage.
type Config struct {
	Log    LogCfg    `toml:"log"`
	SSA    SSACfg    `toml:"ssa"`
	Output OutputCfg `toml:"output"`
}

// LogCfg mirrors logger.Config in TOML-friendly form.
type LogCfg struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	File      string `toml:"file"`
	AddSource bool   `toml:"add_source"`
}

// SSACfg configures SSA construction.
type SSACfg struct {
	WordSize           int  `toml:"word_size"`
	BaseAddress        int  `toml:"base_address"`
	StrictDeclarations bool `toml:"strict_declarations"`
}

// OutputCfg selects how a finished program is printed.
type OutputCfg struct {
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogCfg{
			Level:  "info",
			Format: "text",
		},
		SSA: SSACfg{
			WordSize: 4,
		},
		Output: OutputCfg{
			Format: "text",
		},
	}
}

// Parse decodes TOML on top of the defaults. Keys absent from data keep
// their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Validate rejects values no compiler stage can honor.
func (c *Config) Validate() error {
	if c.SSA.WordSize <= 0 {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "ssa.word_size must be positive, got %d", c.SSA.WordSize)
	}
	if c.SSA.BaseAddress < 0 {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "ssa.base_address must not be negative, got %d", c.SSA.BaseAddress)
	}
	switch c.Output.Format {
	case "text", "dot":
	default:
		return errors.Wrapf(errdefs.ErrInvalidArgument, "output.format must be text or dot, got %q", c.Output.Format)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Wrapf(errdefs.ErrInvalidArgument, "log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LoggerConfig converts the [log] table, writing to out unless a file is
// set. A nil out keeps the logger default of stderr.
func (c *Config) LoggerConfig(out io.Writer) logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(c.Log.Level)
	cfg.Format = c.Log.Format
	cfg.AddSource = c.Log.AddSource
	cfg.LogFile = c.Log.File
	if out != nil {
		cfg.Output = out
	}
	return cfg
}

// BuilderOptions converts the [ssa] table into builder options.
func (c *Config) BuilderOptions(l *slog.Logger) []ssa.Option {
	opts := []ssa.Option{
		ssa.WithWordSize(c.SSA.WordSize),
		ssa.WithBaseAddress(c.SSA.BaseAddress),
		ssa.WithStrictDeclarations(c.SSA.StrictDeclarations),
	}
	if l != nil {
		opts = append(opts, ssa.WithLogger(l))
	}
	return opts
}
