package speech

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/IsHPDuwu/classvoice/schedule"
)

// fakeProvider serves canned engines by name.
type fakeProvider struct {
	mu          sync.Mutex
	order       []string
	engines     map[string]*fakeEngine
	createErrs  map[string]error
	voices      map[string][]Voice
	voicesErr   error
	voicesCalls int
}

func newFakeProvider(names ...string) *fakeProvider {
	p := &fakeProvider{
		engines:    map[string]*fakeEngine{},
		createErrs: map[string]error{},
		voices:     map[string][]Voice{},
	}
	for _, name := range names {
		p.order = append(p.order, name)
		p.engines[name] = newFakeEngine(name)
	}
	return p
}

func (p *fakeProvider) Create(preference string) (Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if preference == "" || preference == "auto" {
		for _, name := range p.order {
			if p.createErrs[name] == nil {
				return p.engines[name], nil
			}
		}
		return nil, ErrNoEngine
	}
	if err := p.createErrs[preference]; err != nil {
		return nil, err
	}
	engine, ok := p.engines[preference]
	if !ok {
		return nil, fmt.Errorf("engine %q: %w", preference, ErrUnknownEngine)
	}
	return engine, nil
}

func (p *fakeProvider) Available() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *fakeProvider) Names() []string {
	return p.Available()
}

func (p *fakeProvider) Voices(name string) ([]Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voicesCalls++
	if p.voicesErr != nil {
		return nil, p.voicesErr
	}
	return p.voices[name], nil
}

// fakeStore records every saved config.
type fakeStore struct {
	mu      sync.Mutex
	saves   []Config
	saveErr error
}

func (s *fakeStore) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, cfg)
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *fakeStore) lastSave(t *testing.T) Config {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		t.Fatal("nothing was saved")
	}
	return s.saves[len(s.saves)-1]
}

// fakeSource is a static schedule position.
type fakeSource struct {
	current *schedule.Subject
	entry   *schedule.Entry
	next    []schedule.Entry
	byID    map[string]schedule.Subject
}

func (s *fakeSource) CurrentSubject() (schedule.Subject, bool) {
	if s.current == nil {
		return schedule.Subject{}, false
	}
	return *s.current, true
}

func (s *fakeSource) CurrentEntry() (schedule.Entry, bool) {
	if s.entry == nil {
		return schedule.Entry{}, false
	}
	return *s.entry, true
}

func (s *fakeSource) NextEntries() []schedule.Entry { return s.next }

func (s *fakeSource) Subject(id string) (schedule.Subject, bool) {
	subj, ok := s.byID[id]
	return subj, ok
}

func newTestService(t *testing.T, provider *fakeProvider, store *fakeStore, source schedule.Source) (*Service, *fakeSink) {
	t.Helper()
	sink := &fakeSink{autoDone: true}
	cfg := DefaultConfig()
	cfg.CleanupDelay = 10 * time.Millisecond
	svc := NewService(cfg, provider, sink, store, source)
	svc.speaker.tempDir = t.TempDir()
	t.Cleanup(svc.Shutdown)
	return svc, sink
}

func TestServiceDegradedWithoutEngine(t *testing.T) {
	provider := newFakeProvider("piper")
	provider.createErrs["piper"] = errors.New("piper broke")
	svc, _ := newTestService(t, provider, &fakeStore{}, nil)

	if got := svc.ActiveEngineName(); got != "" {
		t.Errorf("ActiveEngineName() = %q, want empty while degraded", got)
	}

	ev := Event{ProviderID: "cw.runtime.class", Title: "上课"}
	if err := svc.HandleNotification(ev); !errors.Is(err, ErrNoEngine) {
		t.Errorf("HandleNotification() while degraded = %v, want ErrNoEngine", err)
	}
}

func TestServiceAnnouncesThroughEngine(t *testing.T) {
	provider := newFakeProvider("piper")
	source := &fakeSource{
		current: &schedule.Subject{ID: "math", Name: "数学", Teacher: "张老师"},
	}
	svc, sink := newTestService(t, provider, &fakeStore{}, source)

	ev := Event{ProviderID: "cw.runtime.class", Title: "上课"}
	if err := svc.HandleNotification(ev); err != nil {
		t.Fatalf("HandleNotification() failed: %v", err)
	}
	svc.Wait()

	engine := provider.engines["piper"]
	engine.mu.Lock()
	texts := append([]string(nil), engine.texts...)
	engine.mu.Unlock()

	if len(texts) != 1 || texts[0] != "上课了，数学" {
		t.Errorf("spoken texts = %q, want [上课了，数学]", texts)
	}
	if sink.playCount() != 1 {
		t.Errorf("playCount = %d, want 1", sink.playCount())
	}
}

func TestServiceDropsEmptyAnnouncements(t *testing.T) {
	provider := newFakeProvider("piper")
	svc, sink := newTestService(t, provider, &fakeStore{}, nil)

	if err := svc.HandleNotification(Event{ProviderID: "other.plugin"}); err != nil {
		t.Fatalf("empty announcement should not error: %v", err)
	}
	svc.Wait()

	if n := provider.engines["piper"].callCount(); n != 0 {
		t.Errorf("engine called %d times for empty text", n)
	}
	if sink.playCount() != 0 {
		t.Errorf("playCount = %d, want 0", sink.playCount())
	}
}

func TestServiceSetEngine(t *testing.T) {
	provider := newFakeProvider("edge", "piper")
	store := &fakeStore{}
	cfg := DefaultConfig()
	cfg.Engine = "edge"
	sink := &fakeSink{autoDone: true}
	svc := NewService(cfg, provider, sink, store, nil)
	t.Cleanup(svc.Shutdown)

	if err := svc.SetEngine("piper"); err != nil {
		t.Fatalf("SetEngine(piper) failed: %v", err)
	}

	if got := svc.ActiveEngineName(); got != "piper" {
		t.Errorf("ActiveEngineName() = %q, want piper", got)
	}
	old := provider.engines["edge"]
	if !old.stopped || !old.cleaned {
		t.Error("previous engine should be stopped and cleaned up")
	}
	if store.lastSave(t).Engine != "piper" {
		t.Errorf("saved engine = %q, want piper", store.lastSave(t).Engine)
	}
}

func TestServiceSetEngineFailureKeepsCurrent(t *testing.T) {
	provider := newFakeProvider("edge")
	store := &fakeStore{}
	cfg := DefaultConfig()
	cfg.Engine = "edge"
	svc := NewService(cfg, provider, &fakeSink{autoDone: true}, store, nil)
	t.Cleanup(svc.Shutdown)

	if err := svc.SetEngine("nope"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("SetEngine(nope) = %v, want ErrUnknownEngine", err)
	}
	if got := svc.ActiveEngineName(); got != "edge" {
		t.Errorf("ActiveEngineName() = %q, want unchanged edge", got)
	}
	if store.saveCount() != 0 {
		t.Errorf("failed switch should not save, got %d saves", store.saveCount())
	}
}

func TestServiceVoiceCache(t *testing.T) {
	provider := newFakeProvider("piper")
	provider.voices["piper"] = []Voice{{ID: "v1"}, {ID: "v2"}}
	svc, _ := newTestService(t, provider, &fakeStore{}, nil)

	for i := 0; i < 3; i++ {
		voices, err := svc.Voices("piper")
		if err != nil {
			t.Fatalf("Voices() failed: %v", err)
		}
		if len(voices) != 2 {
			t.Fatalf("Voices() returned %d voices, want 2", len(voices))
		}
	}
	if provider.voicesCalls != 1 {
		t.Errorf("provider queried %d times, want 1 (cached)", provider.voicesCalls)
	}

	if _, err := svc.RefreshVoices("piper"); err != nil {
		t.Fatalf("RefreshVoices() failed: %v", err)
	}
	if provider.voicesCalls != 2 {
		t.Errorf("refresh should re-query, got %d calls", provider.voicesCalls)
	}
}

func TestServiceSetVoice(t *testing.T) {
	provider := newFakeProvider("piper")
	provider.voices["piper"] = []Voice{{ID: "known"}}
	store := &fakeStore{}
	svc, _ := newTestService(t, provider, store, nil)

	if _, err := svc.Voices("piper"); err != nil {
		t.Fatalf("Voices() failed: %v", err)
	}

	if err := svc.SetVoice("unknown"); !errors.Is(err, ErrVoiceNotFound) {
		t.Errorf("SetVoice(unknown) = %v, want ErrVoiceNotFound", err)
	}
	if err := svc.SetVoice("known"); err != nil {
		t.Fatalf("SetVoice(known) failed: %v", err)
	}
	if store.lastSave(t).Voice != "known" {
		t.Errorf("saved voice = %q, want known", store.lastSave(t).Voice)
	}
}

func TestServiceVolume(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(t, newFakeProvider("piper"), store, nil)

	if err := svc.SetVolume(2.5); err != nil {
		t.Fatalf("SetVolume() failed: %v", err)
	}
	if got := svc.Volume(); got != 1.0 {
		t.Errorf("Volume() = %f, want clamped 1.0", got)
	}
	if got := store.lastSave(t).Volume; got != 1.0 {
		t.Errorf("saved volume = %f, want 1.0", got)
	}
}

func TestServiceTemplates(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(t, newFakeProvider("piper"), store, nil)

	got, err := svc.Template("class")
	if err != nil {
		t.Fatalf("Template(class) failed: %v", err)
	}
	if got != DefaultTemplates["class"] {
		t.Errorf("Template(class) = %q, want default", got)
	}

	if err := svc.SetTemplate("class", "custom {subject}"); err != nil {
		t.Fatalf("SetTemplate() failed: %v", err)
	}
	if got, _ := svc.Template("class"); got != "custom {subject}" {
		t.Errorf("Template(class) after set = %q", got)
	}
	if store.lastSave(t).Templates["class"] != "custom {subject}" {
		t.Error("SetTemplate should persist the new text")
	}

	if err := svc.ResetTemplate("class"); err != nil {
		t.Fatalf("ResetTemplate() failed: %v", err)
	}
	if got, _ := svc.Template("class"); got != DefaultTemplates["class"] {
		t.Errorf("Template(class) after reset = %q, want default", got)
	}

	if _, err := svc.Template("bogus"); !errors.Is(err, ErrTemplateUnknown) {
		t.Errorf("Template(bogus) = %v, want ErrTemplateUnknown", err)
	}
	if err := svc.SetTemplate("bogus", "x"); !errors.Is(err, ErrTemplateUnknown) {
		t.Errorf("SetTemplate(bogus) = %v, want ErrTemplateUnknown", err)
	}

	// Mutating the returned map must not leak into the service.
	svc.Templates()["class"] = "mutated"
	if got, _ := svc.Template("class"); got == "mutated" {
		t.Error("Templates() should return a copy")
	}
}

func TestServiceApplyConfig(t *testing.T) {
	provider := newFakeProvider("edge", "piper")
	cfg := DefaultConfig()
	cfg.Engine = "edge"
	svc := NewService(cfg, provider, &fakeSink{autoDone: true}, &fakeStore{}, nil)
	t.Cleanup(svc.Shutdown)

	next := DefaultConfig()
	next.Engine = "piper"
	next.Volume = 0.5
	next.Templates["class"] = "reloaded"
	svc.ApplyConfig(next)

	if got := svc.ActiveEngineName(); got != "piper" {
		t.Errorf("ActiveEngineName() = %q, want piper after reload", got)
	}
	if got := svc.Volume(); got != 0.5 {
		t.Errorf("Volume() = %f, want 0.5 after reload", got)
	}
	if got, _ := svc.Template("class"); got != "reloaded" {
		t.Errorf("Template(class) = %q, want reloaded", got)
	}
}

func TestServiceDiscoverySurface(t *testing.T) {
	provider := newFakeProvider("edge", "piper")
	svc, _ := newTestService(t, provider, &fakeStore{}, nil)

	engines := svc.AvailableEngines()
	want := []string{"auto", "edge", "piper"}
	if !reflect.DeepEqual(engines, want) {
		t.Errorf("AvailableEngines() = %v, want %v", engines, want)
	}

	if got := svc.CurrentEngine(); got != "auto" {
		t.Errorf("CurrentEngine() = %q, want auto", got)
	}
	if got := svc.ActiveEngineName(); got != "edge" {
		t.Errorf("ActiveEngineName() = %q, want edge", got)
	}

	keys := svc.TemplateKeys()
	if !reflect.DeepEqual(keys, TemplateKeys) {
		t.Errorf("TemplateKeys() = %v", keys)
	}
	def, err := svc.DefaultTemplate("free")
	if err != nil || def != DefaultTemplates["free"] {
		t.Errorf("DefaultTemplate(free) = %q, %v", def, err)
	}
	if _, err := svc.DefaultTemplate("bogus"); !errors.Is(err, ErrTemplateUnknown) {
		t.Errorf("DefaultTemplate(bogus) = %v, want ErrTemplateUnknown", err)
	}
}

func TestServiceShutdownIdempotent(t *testing.T) {
	provider := newFakeProvider("piper")
	sink := &fakeSink{autoDone: true}
	svc := NewService(DefaultConfig(), provider, sink, &fakeStore{}, nil)

	svc.Shutdown()
	svc.Shutdown()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.closed {
		t.Error("shutdown should close the sink")
	}
	engine := provider.engines["piper"]
	if !engine.cleaned {
		t.Error("shutdown should clean up the engine")
	}
}
