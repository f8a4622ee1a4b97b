package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech engine: auto, edge, native or piper
# "auto" picks the first engine that works on this machine
engine: "auto"
# voice identifier; leave empty for the engine default
voice: ""
# playback volume (0.0 to 1.0)
volume: 1.0
# how long one synthesis request may take
synthesis_timeout: "30s"
# how long finished audio files linger before deletion
cleanup_delay: "1.5s"

# announcement templates per activity
# placeholders: {title} {message} {subject} {teacher} {location}
#               {next_subject} {next_teacher} {next_location}
templates:
  class: "上课了，{subject}"
  activity: "活动开始，{subject}"
  break: "下课了，下节课是{next_subject}"
  free: "放学了"
  preparation: "预备铃，下节课是{next_subject}"

# cloud neural engine (edge-tts)
edge:
  # override the synthesizer command; empty auto-detects edge-tts
  command: ""
  requests_per_minute: 20

# OS speech facility
native:
  sample_rate: 22050

# offline engine (piper)
piper:
  binary: "piper"
  # model: "/path/to/voice.onnx"
  # data_dir: "/usr/share/piper"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the classvoice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the classvoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("classvoice config\nclassvoice config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("classvoice", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
