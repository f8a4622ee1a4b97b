package speech

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefaultConfig tests that default configuration is valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	if cfg.Engine != "auto" {
		t.Errorf("Default engine should be auto, got %s", cfg.Engine)
	}

	if cfg.Volume != 1.0 {
		t.Errorf("Default volume should be 1.0, got %f", cfg.Volume)
	}

	for _, key := range TemplateKeys {
		if cfg.Templates[key] != DefaultTemplates[key] {
			t.Errorf("Template %q should default to %q, got %q",
				key, DefaultTemplates[key], cfg.Templates[key])
		}
	}
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "empty engine",
			modify: func(c *Config) {
				c.Engine = ""
			},
			wantErr: true,
			errMsg:  "engine preference cannot be empty",
		},
		{
			name: "volume too high",
			modify: func(c *Config) {
				c.Volume = 1.5
			},
			wantErr: true,
			errMsg:  "volume must be between",
		},
		{
			name: "volume too low",
			modify: func(c *Config) {
				c.Volume = -0.1
			},
			wantErr: true,
			errMsg:  "volume must be between",
		},
		{
			name: "synthesis timeout too short",
			modify: func(c *Config) {
				c.SynthesisTimeout = 500 * time.Millisecond
			},
			wantErr: true,
			errMsg:  "synthesis_timeout must be at least",
		},
		{
			name: "negative cleanup delay",
			modify: func(c *Config) {
				c.CleanupDelay = -time.Second
			},
			wantErr: true,
			errMsg:  "cleanup_delay cannot be negative",
		},
		{
			name: "zero edge rate limit",
			modify: func(c *Config) {
				c.Edge.RequestsPerMinute = 0
			},
			wantErr: true,
			errMsg:  "requests_per_minute must be at least",
		},
		{
			name: "empty piper binary",
			modify: func(c *Config) {
				c.Piper.Binary = ""
			},
			wantErr: true,
			errMsg:  "piper binary path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() should have failed")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

// TestNormalize tests that only missing template keys are filled in.
func TestNormalize(t *testing.T) {
	cfg := Config{
		Templates: map[string]string{
			"class": "custom",
			"free":  "",
		},
	}
	cfg.Normalize()

	if cfg.Templates["class"] != "custom" {
		t.Errorf("custom template overwritten: %q", cfg.Templates["class"])
	}
	if cfg.Templates["free"] != "" {
		t.Errorf("explicitly blank template overwritten: %q", cfg.Templates["free"])
	}
	if cfg.Templates["break"] != DefaultTemplates["break"] {
		t.Errorf("missing template not filled: %q", cfg.Templates["break"])
	}

	var nilMap Config
	nilMap.Normalize()
	if len(nilMap.Templates) != len(DefaultTemplates) {
		t.Errorf("nil template map should fill all %d defaults, got %d",
			len(DefaultTemplates), len(nilMap.Templates))
	}
}

// TestClampVolume tests volume clamping.
func TestClampVolume(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-1.0, 0.0},
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{2.0, 1.0},
	}

	for _, tt := range tests {
		if got := ClampVolume(tt.in); got != tt.want {
			t.Errorf("ClampVolume(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

// TestLoadConfigFromViper tests config loading with viper values and
// environment overrides.
func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("engine", "piper")
	viper.Set("volume", 0.4)
	viper.Set("synthesis_timeout", "10s")
	viper.Set("templates", map[string]string{"class": "开始{subject}"})
	viper.Set("piper.binary", "piper")
	viper.Set("edge.requests_per_minute", 5)

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper() failed: %v", err)
	}

	if cfg.Engine != "piper" {
		t.Errorf("Engine = %q, want piper", cfg.Engine)
	}
	if cfg.Volume != 0.4 {
		t.Errorf("Volume = %f, want 0.4", cfg.Volume)
	}
	if cfg.SynthesisTimeout != 10*time.Second {
		t.Errorf("SynthesisTimeout = %v, want 10s", cfg.SynthesisTimeout)
	}
	if cfg.Templates["class"] != "开始{subject}" {
		t.Errorf("Templates[class] = %q", cfg.Templates["class"])
	}
	if cfg.Templates["break"] != DefaultTemplates["break"] {
		t.Errorf("unset template not defaulted: %q", cfg.Templates["break"])
	}
	if cfg.Edge.RequestsPerMinute != 5 {
		t.Errorf("Edge.RequestsPerMinute = %d, want 5", cfg.Edge.RequestsPerMinute)
	}
}

// TestLoadConfigEnvOverride tests that CLASSVOICE_* variables beat the
// config file.
func TestLoadConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("engine", "piper")
	t.Setenv("CLASSVOICE_ENGINE", "edge")
	t.Setenv("CLASSVOICE_VOLUME", "0.25")

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper() failed: %v", err)
	}

	if cfg.Engine != "edge" {
		t.Errorf("Engine = %q, want env override edge", cfg.Engine)
	}
	if cfg.Volume != 0.25 {
		t.Errorf("Volume = %f, want env override 0.25", cfg.Volume)
	}
}

// TestLoadConfigInvalid tests that a bad config is rejected.
func TestLoadConfigInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("volume", 7.0)

	if _, err := LoadConfigFromViper(); err == nil {
		t.Fatal("LoadConfigFromViper() should reject volume 7.0")
	}
}
