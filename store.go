package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/IsHPDuwu/classvoice/speech"
)

// viperStore persists speech configuration back to the YAML config file.
type viperStore struct{}

func (viperStore) Save(cfg speech.Config) error {
	viper.Set("engine", cfg.Engine)
	viper.Set("voice", cfg.Voice)
	viper.Set("volume", cfg.Volume)
	viper.Set("synthesis_timeout", cfg.SynthesisTimeout.String())
	viper.Set("cleanup_delay", cfg.CleanupDelay.String())
	viper.Set("templates", cfg.Templates)
	viper.Set("edge.command", cfg.Edge.Command)
	viper.Set("edge.requests_per_minute", cfg.Edge.RequestsPerMinute)
	viper.Set("native.sample_rate", cfg.Native.SampleRate)
	viper.Set("piper.binary", cfg.Piper.Binary)
	viper.Set("piper.model", cfg.Piper.Model)
	viper.Set("piper.data_dir", cfg.Piper.DataDir)

	if err := ensureConfigFile(); err != nil {
		return err
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
