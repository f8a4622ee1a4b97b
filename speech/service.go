package speech

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/IsHPDuwu/classvoice/schedule"
)

// Service is the top level speech facade: it owns the configuration, the
// Speaker, and the voice cache, and exposes the operations the CLI and the
// notification listener call. All methods are safe for concurrent use.
//
// Engine trouble never takes the Service down. When no engine could be
// created the Service runs degraded: announcements are dropped with a
// warning and ActiveEngineName reports "".
type Service struct {
	mu       sync.Mutex
	cfg      Config
	speaker  *Speaker
	sink     Sink
	provider EngineProvider
	store    ConfigStore
	source   schedule.Source

	voiceCache map[string][]Voice
	refreshing map[string]bool

	shutdown bool
}

// NewService assembles a Service. The engine named by cfg.Engine is
// created up front; failure is logged and leaves the Service degraded
// rather than failing construction. source may be nil when no schedule
// data is connected.
func NewService(cfg Config, provider EngineProvider, sink Sink, store ConfigStore, source schedule.Source) *Service {
	cfg.Normalize()

	engine, err := provider.Create(cfg.Engine)
	if err != nil {
		log.Warn("no speech engine, announcements disabled until one is set",
			"preference", cfg.Engine, "err", err)
		engine = nil
	}
	if engine != nil && cfg.Voice != "" {
		engine.SetVoice(cfg.Voice)
	}

	return &Service{
		cfg:        cfg,
		speaker:    NewSpeaker(engine, sink, cfg),
		sink:       sink,
		provider:   provider,
		store:      store,
		source:     source,
		voiceCache: map[string][]Voice{},
		refreshing: map[string]bool{},
	}
}

// Announce builds the announcement text for a notification event and
// speaks it. Events that resolve to empty text are dropped silently; a
// missing engine drops them with a warning.
func (s *Service) Announce(ev Event, sctx schedule.Context) error {
	s.mu.Lock()
	templates := s.cfg.Templates
	s.mu.Unlock()

	text := BuildAnnounceText(ev, templates, sctx)
	if text == "" {
		return nil
	}

	if err := s.speaker.Speak(text); err != nil {
		log.Warn("announcement dropped", "text", text, "err", err)
		return err
	}
	return nil
}

// HandleNotification announces an event using the schedule context derived
// from the connected schedule source.
func (s *Service) HandleNotification(ev Event) error {
	return s.Announce(ev, schedule.Derive(s.source))
}

// TestSpeak speaks raw text directly, bypassing templates. Used by the
// settings surface so users can audition voice and volume.
func (s *Service) TestSpeak(text string) error {
	return s.speaker.Speak(text)
}

// Wait blocks until pending announcements have been spoken in full.
func (s *Service) Wait() {
	s.speaker.Wait()
}

// StopPlayback halts whatever is currently playing.
func (s *Service) StopPlayback() {
	s.speaker.StopPlayback()
}

// ActiveEngineName returns the name of the engine in use, or "" when the
// Service is degraded.
func (s *Service) ActiveEngineName() string {
	return s.speaker.EngineName()
}

// CurrentEngine returns the configured engine preference, which may be
// "auto" while ActiveEngineName names the variant actually running.
func (s *Service) CurrentEngine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Engine
}

// CurrentVoice returns the active engine's voice id, or "" when no engine
// is running or the engine uses its default voice.
func (s *Service) CurrentVoice() string {
	engine := s.speaker.Engine()
	if engine == nil {
		return ""
	}
	return engine.CurrentVoice()
}

// AvailableEngines lists the selectable engine preferences: "auto" plus
// every variant usable in this environment.
func (s *Service) AvailableEngines() []string {
	return append([]string{"auto"}, s.provider.Available()...)
}

// EngineNames lists every known variant, usable or not.
func (s *Service) EngineNames() []string {
	return s.provider.Names()
}

// SetEngine switches to the named engine (or "auto") and persists the
// choice. On failure the previous engine keeps running and nothing is
// saved.
func (s *Service) SetEngine(name string) error {
	engine, err := s.provider.Create(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg.Engine = name
	if s.cfg.Voice != "" {
		engine.SetVoice(s.cfg.Voice)
	}
	// A fresh engine instance may see a different environment, so its
	// cached voice list is stale.
	delete(s.voiceCache, engine.Name())
	cfg := s.snapshotLocked()
	s.mu.Unlock()

	s.speaker.SwapEngine(engine)
	log.Info("engine switched", "engine", engine.Name())
	return s.store.Save(cfg)
}

// Voices returns the cached voice list for the named engine, fetching it
// on first use. The empty name means the active engine.
func (s *Service) Voices(name string) ([]Voice, error) {
	if name == "" {
		name = s.ActiveEngineName()
		if name == "" {
			return nil, ErrNoEngine
		}
	}

	s.mu.Lock()
	if voices, ok := s.voiceCache[name]; ok {
		s.mu.Unlock()
		return voices, nil
	}
	s.mu.Unlock()

	return s.RefreshVoices(name)
}

// RefreshVoices re-enumerates the voices of the named engine and updates
// the cache. Concurrent refreshes of the same engine collapse into one:
// latecomers get the stale cache instead of a second enumeration.
func (s *Service) RefreshVoices(name string) ([]Voice, error) {
	s.mu.Lock()
	if s.refreshing[name] {
		stale := s.voiceCache[name]
		s.mu.Unlock()
		return stale, nil
	}
	s.refreshing[name] = true
	s.mu.Unlock()

	voices, err := s.provider.Voices(name)

	s.mu.Lock()
	delete(s.refreshing, name)
	if err == nil {
		s.voiceCache[name] = voices
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return voices, nil
}

// SetVoice switches the active engine's voice and persists it. When the
// engine's voice list is known the id is validated against it.
func (s *Service) SetVoice(id string) error {
	engine := s.speaker.Engine()
	if engine == nil {
		return ErrNoEngine
	}

	s.mu.Lock()
	known := s.voiceCache[engine.Name()]
	s.mu.Unlock()

	if len(known) > 0 && !voiceKnown(known, id) {
		return fmt.Errorf("voice %q: %w", id, ErrVoiceNotFound)
	}

	engine.SetVoice(id)

	s.mu.Lock()
	s.cfg.Voice = id
	cfg := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(cfg)
}

func voiceKnown(voices []Voice, id string) bool {
	for _, v := range voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// SetVolume clamps v into [0,1], applies it to playback, and persists it.
func (s *Service) SetVolume(v float64) error {
	v = ClampVolume(v)
	s.speaker.SetVolume(v)

	s.mu.Lock()
	s.cfg.Volume = v
	cfg := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(cfg)
}

// Volume returns the current playback volume.
func (s *Service) Volume() float64 {
	return s.speaker.Volume()
}

// TemplateKeys lists the configurable activity keys in a stable order.
func (s *Service) TemplateKeys() []string {
	return append([]string(nil), TemplateKeys...)
}

// DefaultTemplate returns the stock template for an activity key.
func (s *Service) DefaultTemplate(key string) (string, error) {
	def, ok := DefaultTemplates[key]
	if !ok {
		return "", fmt.Errorf("template %q: %w", key, ErrTemplateUnknown)
	}
	return def, nil
}

// Template returns the announcement template for an activity key.
func (s *Service) Template(key string) (string, error) {
	if _, ok := DefaultTemplates[key]; !ok {
		return "", fmt.Errorf("template %q: %w", key, ErrTemplateUnknown)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Templates[key], nil
}

// SetTemplate replaces the template for an activity key and persists it.
// A blank text is stored as-is; the announcer falls back to the default
// text at announce time.
func (s *Service) SetTemplate(key, text string) error {
	if _, ok := DefaultTemplates[key]; !ok {
		return fmt.Errorf("template %q: %w", key, ErrTemplateUnknown)
	}
	s.mu.Lock()
	s.cfg.Templates[key] = text
	cfg := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(cfg)
}

// ResetTemplate restores an activity key's stock template and persists it.
func (s *Service) ResetTemplate(key string) error {
	def, ok := DefaultTemplates[key]
	if !ok {
		return fmt.Errorf("template %q: %w", key, ErrTemplateUnknown)
	}
	s.mu.Lock()
	s.cfg.Templates[key] = def
	cfg := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(cfg)
}

// Templates returns a copy of the current template map.
func (s *Service) Templates() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.cfg.Templates))
	for k, v := range s.cfg.Templates {
		out[k] = v
	}
	return out
}

// Config returns a snapshot of the current configuration.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked copies the config so callers cannot alias the live
// template map. Callers hold s.mu.
func (s *Service) snapshotLocked() Config {
	cfg := s.cfg
	cfg.Templates = make(map[string]string, len(s.cfg.Templates))
	for k, v := range s.cfg.Templates {
		cfg.Templates[k] = v
	}
	return cfg
}

// ApplyConfig adopts an externally loaded configuration, e.g. after the
// config file changed on disk. The engine is swapped only when the
// preference actually changed; nothing is written back to the store.
func (s *Service) ApplyConfig(next Config) {
	next.Normalize()

	s.mu.Lock()
	engineChanged := next.Engine != s.cfg.Engine
	voiceChanged := next.Voice != s.cfg.Voice
	s.cfg = next
	s.mu.Unlock()

	s.speaker.SetVolume(next.Volume)

	if engineChanged {
		engine, err := s.provider.Create(next.Engine)
		if err != nil {
			log.Warn("engine from updated config failed, keeping current",
				"preference", next.Engine, "err", err)
		} else {
			if next.Voice != "" {
				engine.SetVoice(next.Voice)
			}
			s.speaker.SwapEngine(engine)
		}
		return
	}

	if voiceChanged {
		if engine := s.speaker.Engine(); engine != nil {
			engine.SetVoice(next.Voice)
		}
	}
}

// Shutdown stops playback, releases the engine, and closes the audio
// device. Safe to call more than once.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	s.speaker.Shutdown()
	s.sink.Close()
	log.Debug("speech service shut down")
}
