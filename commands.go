package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/IsHPDuwu/classvoice/schedule"
	"github.com/IsHPDuwu/classvoice/speech"
	"github.com/IsHPDuwu/classvoice/speech/audio"
	"github.com/IsHPDuwu/classvoice/speech/engines"
)

// buildService assembles the full speech stack from the loaded config.
// The caller owns the returned service and must Shutdown it.
func buildService() (*speech.Service, error) {
	cfg, err := speech.LoadConfigFromViper()
	if err != nil {
		return nil, err
	}

	sink, err := audio.NewPlayer()
	if err != nil {
		return nil, err
	}

	var src schedule.Source
	if scheduleFile != "" {
		fileSrc, err := schedule.LoadFile(speech.ExpandPath(scheduleFile))
		if err != nil {
			sink.Close()
			return nil, err
		}
		src = fileSrc
	}

	reg := engines.DefaultRegistry(cfg)
	return speech.NewService(cfg, reg, sink, viperStore{}, src), nil
}

// listenEvent is one line of the stdin event stream. A host that already
// knows the schedule context can embed it; otherwise it is derived from
// the --schedule snapshot.
type listenEvent struct {
	speech.Event
	Context *schedule.Context `json:"context"`
}

// runListen is the root command: read JSON events from stdin and announce
// them until stdin closes or a signal arrives.
func runListen(*cobra.Command, []string) error {
	svc, err := buildService()
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchConfig {
		cancel, err := watchConfigFile(svc)
		if err != nil {
			log.Warn("config watching disabled", "err", err)
		} else {
			defer cancel()
		}
	}

	if name := svc.ActiveEngineName(); name != "" {
		log.Info("listening for notifications", "engine", name)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Error("reading event stream", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				svc.Wait()
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			var ev listenEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				log.Warn("skipping malformed event", "err", err)
				continue
			}
			if ev.Context != nil {
				_ = svc.Announce(ev.Event, *ev.Context)
			} else {
				_ = svc.HandleNotification(ev.Event)
			}
		}
	}
}

// watchConfigFile reloads the configuration whenever the config file is
// rewritten and applies it to the running service.
func watchConfigFile(svc *speech.Service) (func(), error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = configFile
	}
	if path == "" {
		return nil, fmt.Errorf("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	// Watch the directory: editors replace files instead of writing in
	// place, which would orphan a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %q: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := viper.ReadInConfig(); err != nil {
					log.Warn("config reload failed", "err", err)
					continue
				}
				cfg, err := speech.LoadConfigFromViper()
				if err != nil {
					log.Warn("updated config invalid, keeping current", "err", err)
					continue
				}
				log.Info("config reloaded", "path", path)
				svc.ApplyConfig(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher", "err", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

var speakCmd = &cobra.Command{
	Use:     "speak [text]",
	Short:   "Speak text and exit",
	Long:    paragraph(fmt.Sprintf("\n%s a piece of text through the configured engine, wait for playback to finish, and exit. With no argument the text is read from stdin.", keyword("Speak"))),
	Example: "  classvoice speak 上课了，数学\n  echo 放学了 | classvoice speak",
	Args:    cobra.ArbitraryArgs,
	RunE: func(_ *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("unable to read from stdin: %w", err)
			}
			text = strings.TrimSpace(string(b))
		}
		if text == "" {
			return speech.ErrNothingToSpeak
		}

		svc, err := buildService()
		if err != nil {
			return err
		}
		defer svc.Shutdown()

		if svc.ActiveEngineName() == "" {
			return speech.ErrNoEngine
		}
		if err := svc.TestSpeak(text); err != nil {
			return err
		}
		svc.Wait()
		return nil
	},
}

var (
	announceProviderID string
	announceTitle      string
	announceMessage    string

	announceCmd = &cobra.Command{
		Use:     "announce",
		Short:   "Announce a single notification event and exit",
		Long:    paragraph(fmt.Sprintf("\nBuild the announcement for one notification event, %s, and exit. The provider id suffix picks the template; schedule context comes from --schedule.", keyword("speak it"))),
		Example: "  classvoice announce -p cw.runtime.class -t 上课 --schedule today.json",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			if svc.ActiveEngineName() == "" {
				return speech.ErrNoEngine
			}
			ev := speech.Event{
				ProviderID: announceProviderID,
				Title:      announceTitle,
				Message:    announceMessage,
			}
			if err := svc.HandleNotification(ev); err != nil {
				return err
			}
			svc.Wait()
			return nil
		},
	}
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List speech engines",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := speech.LoadConfigFromViper()
		if err != nil {
			return err
		}
		reg := engines.DefaultRegistry(cfg)

		usable := map[string]bool{}
		for _, name := range reg.Available() {
			usable[name] = true
		}

		for _, name := range reg.Names() {
			marker := errorStyle.Render("unavailable")
			if usable[name] {
				marker = keyword("available")
			}
			selected := " "
			if name == cfg.Engine {
				selected = "*"
			}
			fmt.Printf("%s %-8s %s\n", selected, name, marker)
		}
		fmt.Println(dim("\n* configured engine (\"auto\" takes the first available one)"))
		return nil
	},
}

var voicesCmd = &cobra.Command{
	Use:     "voices [engine] [query]",
	Short:   "List the voices of a speech engine",
	Long:    paragraph(fmt.Sprintf("\nList the voices an engine offers, optionally %s by a fuzzy query. Without an engine argument the configured one is used.", keyword("filtered"))),
	Example: "  classvoice voices edge xiaoxiao\n  classvoice voices piper",
	Args:    cobra.MaximumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := speech.LoadConfigFromViper()
		if err != nil {
			return err
		}
		reg := engines.DefaultRegistry(cfg)

		name := cfg.Engine
		if len(args) > 0 {
			name = args[0]
		}
		if name == "" || name == engines.Auto {
			avail := reg.Available()
			if len(avail) == 0 {
				return speech.ErrNoEngine
			}
			name = avail[0]
		}

		voices, err := reg.Voices(name)
		if err != nil {
			return err
		}

		if len(args) > 1 {
			voices = filterVoices(voices, args[1])
		}
		if len(voices) == 0 {
			fmt.Println(dim("no voices found"))
			return nil
		}

		for _, v := range voices {
			locale := v.Locale
			if pretty := localeName(v.Locale); pretty != "" {
				locale = fmt.Sprintf("%s (%s)", v.Locale, pretty)
			}
			fmt.Printf("%-40s %-20s %s\n", v.ID, v.Name, dim(locale))
		}
		return nil
	},
}

// filterVoices keeps the voices fuzzy-matching query on id or name.
func filterVoices(voices []speech.Voice, query string) []speech.Voice {
	targets := make([]string, len(voices))
	for i, v := range voices {
		targets[i] = v.ID + " " + v.Name
	}

	var out []speech.Voice
	for _, m := range fuzzy.Find(query, targets) {
		out = append(out, voices[m.Index])
	}
	return out
}

// localeName renders a BCP 47 tag in its own language, e.g. zh-CN as 中文.
func localeName(locale string) string {
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return display.Self.Name(tag)
}

func init() {
	announceCmd.Flags().StringVarP(&announceProviderID, "provider-id", "p", "", "notification provider id")
	announceCmd.Flags().StringVarP(&announceTitle, "title", "t", "", "notification title")
	announceCmd.Flags().StringVarP(&announceMessage, "message", "m", "", "notification message")
	_ = announceCmd.MarkFlagRequired("provider-id")
}
