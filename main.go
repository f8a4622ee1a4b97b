// Package main provides the entry point for the classvoice CLI, which
// speaks schedule notifications aloud through interchangeable
// text-to-speech backends.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IsHPDuwu/classvoice/speech"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	engineFlag   string
	voiceFlag    string
	volumeFlag   float64
	scheduleFile string
	watchConfig  bool

	rootCmd = &cobra.Command{
		Use:   "classvoice",
		Short: "Speak schedule notifications aloud",
		Long: paragraph(
			fmt.Sprintf("\nRead schedule notification events and %s. Events arrive as JSON lines on stdin; each one is turned into announcement text and spoken through the configured text-to-speech engine.", keyword("speak them aloud")),
		),
		Example:       "  classwidgets-export | classvoice --engine edge\n  classvoice speak 上课了\n  classvoice announce -p cw.runtime.break -t 课间",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runListen,
	}
)

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVarP(&engineFlag, "engine", "e", "", "speech engine: auto, edge, native or piper")
	rootCmd.PersistentFlags().StringVar(&voiceFlag, "voice", "", "voice identifier")
	rootCmd.PersistentFlags().Float64Var(&volumeFlag, "volume", 1.0, "playback volume between 0.0 and 1.0")
	rootCmd.PersistentFlags().StringVar(&scheduleFile, "schedule", "", "JSON schedule snapshot for template context")
	rootCmd.Flags().BoolVarP(&watchConfig, "watch", "w", false, "reload the config file when it changes")

	// Config bindings
	_ = viper.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("volume", rootCmd.PersistentFlags().Lookup("volume"))

	speech.SetDefaults()

	rootCmd.AddCommand(speakCmd, announceCmd, enginesCmd, voicesCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "classvoice")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "classvoice")}, dirs...)
	}

	if c := os.Getenv("CLASSVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("classvoice")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("classvoice")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "classvoice.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// setupLog configures logging. Announcements run in the background of a
// desktop session, so by default only warnings reach stderr; the log file
// and debug level are switched on through the environment.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	log.SetLevel(log.WarnLevel)

	if os.Getenv("CLASSVOICE_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	}

	path := os.Getenv("CLASSVOICE_LOGFILE")
	if path == "" {
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error setting up log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f.Close, nil
}
