// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/server"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix scopes the CLI's own settings, e.g. PASSKEY_CONFIG.
const envPrefix = "PASSKEY"

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the service configuration file
	ConfigFile string

	// OutputFormat controls output formatting (text, json, yaml)
	OutputFormat string

	// Verbose enables verbose logging to stderr
	Verbose bool

	v *viper.Viper
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("output", string(OutputFormatText))

	return &Config{
		OutputFormat: string(OutputFormatText),
		v:            v,
	}
}

// BindFlags binds the persistent flags so that a flag wins over its
// PASSKEY_* environment variable.
func (c *Config) BindFlags(flags *pflag.FlagSet) error {
	for _, name := range []string{"config", "output", "verbose"} {
		if err := c.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Resolve copies the bound values into the struct.
func (c *Config) Resolve() error {
	c.ConfigFile = c.v.GetString("config")
	c.OutputFormat = c.v.GetString("output")
	c.Verbose = c.v.GetBool("verbose")

	switch OutputFormat(c.OutputFormat) {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", c.OutputFormat)
	}
}

// LoadServiceConfig loads and validates the service configuration.
func (c *Config) LoadServiceConfig() (*config.Config, error) {
	return config.Load(c.ConfigFile)
}

// Logger returns a text logger on stderr in verbose mode, otherwise a no-op.
func (c *Config) Logger(w io.Writer) logger.Logger {
	if !c.Verbose {
		return logger.Nop()
	}
	if w == nil {
		w = os.Stderr
	}
	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.LevelDebug,
		Format: "text",
		Output: w,
	})
}

// openComponents loads the service configuration and wires storage and the
// passkey service for offline commands.
func (c *Config) openComponents(ctx context.Context, errOut io.Writer) (*config.Config, *server.Components, error) {
	cfg, err := c.LoadServiceConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Backend == config.StorageMemory {
		fmt.Fprintln(errOut, "warning: storage backend is memory; changes are discarded on exit")
	}
	comps, err := server.NewComponents(ctx, cfg, c.Logger(errOut))
	if err != nil {
		return nil, nil, err
	}
	return cfg, comps, nil
}
