package speech

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

// DefaultTemplates maps each activity key to its stock announcement text.
// Recognized placeholders: {title} {message} {subject} {teacher} {location}
// {next_subject} {next_teacher} {next_location}.
var DefaultTemplates = map[string]string{
	"class":       "上课了，{subject}",
	"activity":    "活动开始，{subject}",
	"break":       "下课了，下节课是{next_subject}",
	"free":        "放学了",
	"preparation": "预备铃，下节课是{next_subject}",
}

// TemplateKeys lists the configurable activity keys in a stable order.
var TemplateKeys = []string{"class", "activity", "break", "free", "preparation"}

// Config contains all speech configuration options.
type Config struct {
	// Engine preference: "auto" picks the first usable variant in priority
	// order, otherwise the named variant is used exclusively.
	Engine string `yaml:"engine" env:"ENGINE"`

	// Voice identifier; empty uses the engine default.
	Voice string `yaml:"voice" env:"VOICE"`

	// Volume in [0.0, 1.0].
	Volume float64 `yaml:"volume" env:"VOLUME"`

	// Templates maps activity keys to announcement format strings. Keys
	// missing from the user map are filled from DefaultTemplates.
	Templates map[string]string `yaml:"templates"`

	// SynthesisTimeout bounds a single synthesize call.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" env:"SYNTHESIS_TIMEOUT"`

	// CleanupDelay is how long after playback ends a temp audio file is
	// kept before deletion, so the OS releases its handle first.
	CleanupDelay time.Duration `yaml:"cleanup_delay" env:"CLEANUP_DELAY"`

	// Engine-specific configurations
	Edge   EdgeConfig   `yaml:"edge"`
	Native NativeConfig `yaml:"native"`
	Piper  PiperConfig  `yaml:"piper"`
}

// EdgeConfig contains settings for the cloud-neural "edge" variant.
type EdgeConfig struct {
	// Command overrides the synthesizer command line. Empty auto-detects
	// edge-tts on PATH, falling back to "python3 -m edge_tts".
	Command string `yaml:"command" env:"EDGE_COMMAND"`

	// RequestsPerMinute rate-limits cloud synthesis requests.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"EDGE_REQUESTS_PER_MINUTE"`
}

// NativeConfig contains settings for the OS-native variant.
type NativeConfig struct {
	// SampleRate of wav output where the platform allows choosing one.
	SampleRate int `yaml:"sample_rate" env:"NATIVE_SAMPLE_RATE"`
}

// PiperConfig contains settings for the offline-local variant.
type PiperConfig struct {
	Binary  string `yaml:"binary" env:"PIPER_BINARY"`
	Model   string `yaml:"model" env:"PIPER_MODEL"`
	DataDir string `yaml:"data_dir" env:"PIPER_DATA_DIR"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	cfg := Config{
		Engine:           "auto",
		Voice:            "",
		Volume:           1.0,
		Templates:        map[string]string{},
		SynthesisTimeout: 30 * time.Second,
		CleanupDelay:     1500 * time.Millisecond,
		Edge: EdgeConfig{
			RequestsPerMinute: 20,
		},
		Native: NativeConfig{
			SampleRate: 22050,
		},
		Piper: PiperConfig{
			Binary: "piper",
		},
	}

	// Common piper model locations per platform.
	switch {
	case fileExists("/usr/share/piper"):
		cfg.Piper.DataDir = "/usr/share/piper"
	case fileExists("/usr/local/share/piper"):
		cfg.Piper.DataDir = "/usr/local/share/piper"
	}

	cfg.Normalize()
	return cfg
}

// Normalize fills template keys missing from the user-supplied map with
// their defaults. Blank user templates are kept; the announcer falls back
// to the default at use time.
func (c *Config) Normalize() {
	if c.Templates == nil {
		c.Templates = map[string]string{}
	}
	for key, text := range DefaultTemplates {
		if _, ok := c.Templates[key]; !ok {
			c.Templates[key] = text
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Engine == "" {
		return fmt.Errorf("engine preference cannot be empty (use %q)", "auto")
	}
	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Volume)
	}
	if c.SynthesisTimeout < time.Second {
		return fmt.Errorf("synthesis_timeout must be at least 1 second, got %v", c.SynthesisTimeout)
	}
	if c.CleanupDelay < 0 {
		return fmt.Errorf("cleanup_delay cannot be negative, got %v", c.CleanupDelay)
	}
	if c.Edge.RequestsPerMinute < 1 {
		return fmt.Errorf("edge requests_per_minute must be at least 1, got %d", c.Edge.RequestsPerMinute)
	}
	if c.Piper.Binary == "" {
		return fmt.Errorf("piper binary path cannot be empty")
	}
	return nil
}

// ClampVolume clips v into the valid [0.0, 1.0] range.
func ClampVolume(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// ExpandPath expands a leading ~ and environment variables in a path.
func ExpandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		expanded = path
	}
	return filepath.Clean(os.ExpandEnv(expanded))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
