package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	encoreconfig "github.com/justapithecus/encore/cli/config"
)

// Precedence for every run setting: explicit CLI flag, then config file,
// then the flag's default.

// resolveString returns the CLI value if explicitly set, else the config
// value if non-empty, else the flag default.
func resolveString(c *cli.Context, flag, cfgVal string) string {
	if c.IsSet(flag) || cfgVal == "" {
		return c.String(flag)
	}
	return cfgVal
}

// resolveInt returns the CLI value if explicitly set, else the config
// value if non-zero, else the flag default.
func resolveInt(c *cli.Context, flag string, cfgVal int) int {
	if c.IsSet(flag) || cfgVal == 0 {
		return c.Int(flag)
	}
	return cfgVal
}

// resolveBool returns the CLI value if explicitly set, else the config value.
func resolveBool(c *cli.Context, flag string, cfgVal bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return cfgVal || c.Bool(flag)
}

// resolveDuration returns the CLI value if explicitly set, else the config
// value if non-zero, else the flag default.
func resolveDuration(c *cli.Context, flag string, cfgVal time.Duration) time.Duration {
	if c.IsSet(flag) || cfgVal == 0 {
		return c.Duration(flag)
	}
	return cfgVal
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *encoreconfig.Config, get func(*encoreconfig.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}
