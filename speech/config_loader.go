package speech

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads the speech configuration from Viper, applies
// CLASSVOICE_* environment overrides, and validates the result.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("engine") {
		cfg.Engine = viper.GetString("engine")
	}
	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("volume") {
		cfg.Volume = viper.GetFloat64("volume")
	}
	if viper.IsSet("synthesis_timeout") {
		if d, err := time.ParseDuration(viper.GetString("synthesis_timeout")); err == nil {
			cfg.SynthesisTimeout = d
		}
	}
	if viper.IsSet("cleanup_delay") {
		if d, err := time.ParseDuration(viper.GetString("cleanup_delay")); err == nil {
			cfg.CleanupDelay = d
		}
	}

	if viper.IsSet("templates") {
		for key, text := range viper.GetStringMapString("templates") {
			cfg.Templates[key] = text
		}
	}

	cfg.Edge = loadEdgeConfig(cfg.Edge)
	cfg.Native = loadNativeConfig(cfg.Native)
	cfg.Piper = loadPiperConfig(cfg.Piper)

	// Environment variables trump the config file.
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CLASSVOICE_"}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid speech configuration: %w", err)
	}
	return cfg, nil
}

func loadEdgeConfig(cfg EdgeConfig) EdgeConfig {
	if viper.IsSet("edge.command") {
		cfg.Command = viper.GetString("edge.command")
	}
	if viper.IsSet("edge.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("edge.requests_per_minute")
	}
	return cfg
}

func loadNativeConfig(cfg NativeConfig) NativeConfig {
	if viper.IsSet("native.sample_rate") {
		cfg.SampleRate = viper.GetInt("native.sample_rate")
	}
	return cfg
}

func loadPiperConfig(cfg PiperConfig) PiperConfig {
	if viper.IsSet("piper.binary") {
		cfg.Binary = ExpandPath(viper.GetString("piper.binary"))
	}
	if viper.IsSet("piper.model") {
		cfg.Model = viper.GetString("piper.model")
	}
	if viper.IsSet("piper.data_dir") {
		cfg.DataDir = ExpandPath(viper.GetString("piper.data_dir"))
	}
	return cfg
}

// SetDefaults registers default values in Viper so that a written config
// file round-trips them.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("engine", defaults.Engine)
	viper.SetDefault("voice", defaults.Voice)
	viper.SetDefault("volume", defaults.Volume)
	viper.SetDefault("synthesis_timeout", defaults.SynthesisTimeout.String())
	viper.SetDefault("cleanup_delay", defaults.CleanupDelay.String())

	for key, text := range DefaultTemplates {
		viper.SetDefault("templates."+key, text)
	}

	viper.SetDefault("edge.command", defaults.Edge.Command)
	viper.SetDefault("edge.requests_per_minute", defaults.Edge.RequestsPerMinute)
	viper.SetDefault("native.sample_rate", defaults.Native.SampleRate)
	viper.SetDefault("piper.binary", defaults.Piper.Binary)
	viper.SetDefault("piper.model", defaults.Piper.Model)
	viper.SetDefault("piper.data_dir", defaults.Piper.DataDir)
}
