package cli

import (
	envparse "github.com/caarlos0/env/v11"

	"github.com/dbgenai/stackctl/internal/logging"
)

// baseEnv defines root CLI defaults sourced from STACKCTL_* env vars.
type baseEnv struct {
	// ConfigPath is the stackctl.yaml path from STACKCTL_CONFIG.
	ConfigPath string `env:"STACKCTL_CONFIG"`
	// Vars is a k=v,k2=v2 override list from STACKCTL_VARS.
	Vars string `env:"STACKCTL_VARS"`
	// LogLevel is the logging level from STACKCTL_LOG_LEVEL.
	LogLevel string `env:"STACKCTL_LOG_LEVEL"`
}

// applyBaseEnv overlays environment-provided defaults onto the root options.
// Explicit flags still win because cobra parses them afterwards.
func applyBaseEnv(opts *Options) {
	var be baseEnv
	if err := envparse.Parse(&be); err != nil {
		return
	}
	if be.ConfigPath != "" {
		opts.ConfigPath = be.ConfigPath
	}
	if be.Vars != "" {
		opts.Vars = be.Vars
	}
	if be.LogLevel != "" {
		opts.LogLevel = logging.ParseLevel(be.LogLevel)
	}
}
