package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
)

const tempFilePrefix = "classvoice"

// Speaker turns announcement text into audible speech. Each Speak call
// synthesizes on a background goroutine and hands the resulting file to
// the Sink, preempting whatever was playing before. Temp audio files are
// deleted a short while after their playback ends so the OS can release
// its handle first.
type Speaker struct {
	mu      sync.Mutex
	engine  Engine
	sink    Sink
	volume  float64
	stopped bool

	synthTimeout time.Duration
	cleanupDelay time.Duration
	tempDir      string

	wg      sync.WaitGroup
	playing sync.WaitGroup
}

// NewSpeaker creates a Speaker around an engine and a sink. The engine may
// be nil; Speak then fails with ErrNoEngine until SwapEngine installs one.
// The Speaker does not own the sink: Shutdown stops playback but leaves the
// sink open for a successor.
func NewSpeaker(engine Engine, sink Sink, cfg Config) *Speaker {
	return &Speaker{
		engine:       engine,
		sink:         sink,
		volume:       ClampVolume(cfg.Volume),
		synthTimeout: cfg.SynthesisTimeout,
		cleanupDelay: cfg.CleanupDelay,
		tempDir:      os.TempDir(),
	}
}

// Speak synthesizes text and plays it, replacing any current playback.
// Synthesis runs on a background goroutine; Speak itself returns as soon
// as the work is queued. Empty text is a no-op.
func (s *Speaker) Speak(text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSpeakerStopped
	}
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		return ErrNoEngine
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.synthesizeAndPlay(engine, text)
	}()
	return nil
}

func (s *Speaker) synthesizeAndPlay(engine Engine, text string) {
	path := s.tempFilePath(engine)

	ctx, cancel := context.WithTimeout(context.Background(), s.synthTimeout)
	defer cancel()

	start := time.Now()
	if err := engine.Synthesize(ctx, text, path); err != nil {
		// The engine may have written a partial file before failing.
		os.Remove(path)
		log.Error("synthesis failed", "err", NewSynthesisError(engine.Name(), err))
		return
	}

	s.mu.Lock()
	stopped := s.stopped
	volume := s.volume
	s.mu.Unlock()

	if stopped {
		os.Remove(path)
		return
	}

	if info, err := os.Stat(path); err == nil {
		log.Debug("synthesis done",
			"engine", engine.Name(),
			"size", humanize.Bytes(uint64(info.Size())),
			"took", time.Since(start))
	}

	s.playing.Add(1)
	err := s.sink.Play(path, volume, func() {
		s.scheduleCleanup(path)
		s.playing.Done()
	})
	if err != nil {
		s.playing.Done()
		log.Error("playback failed", "engine", engine.Name(), "err", err)
		os.Remove(path)
	}
}

// Wait blocks until all queued synthesis and the playback it started have
// finished. One-shot callers use it to hold the process open until the
// audio has actually been heard.
func (s *Speaker) Wait() {
	s.wg.Wait()
	s.playing.Wait()
}

// scheduleCleanup deletes path after the configured delay. It runs once per
// file, triggered by the sink when the file's playback ends for any reason.
func (s *Speaker) scheduleCleanup(path string) {
	time.AfterFunc(s.cleanupDelay, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("temp file cleanup failed", "path", path, "err", err)
		}
	})
}

// tempFilePath builds a unique output path for one synthesis. The "edge"
// variant emits mp3; every other backend emits wav.
func (s *Speaker) tempFilePath(engine Engine) string {
	ext := ".wav"
	if engine.Name() == "edge" {
		ext = ".mp3"
	}
	name := fmt.Sprintf("%s_%s_%s%s", tempFilePrefix, engine.Name(), xid.New(), ext)
	return filepath.Join(s.tempDir, name)
}

// StopPlayback halts the current playback without shutting the Speaker
// down. The interrupted file is still cleaned up after the usual delay.
func (s *Speaker) StopPlayback() {
	s.sink.Stop()
}

// SwapEngine replaces the active engine, stopping and releasing the old
// one. Audio already playing is unaffected; only future Speak calls use
// the new engine. next may be nil.
func (s *Speaker) SwapEngine(next Engine) {
	s.mu.Lock()
	prev := s.engine
	s.engine = next
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
		prev.Cleanup()
	}
}

// Engine returns the active engine, which may be nil.
func (s *Speaker) Engine() Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// EngineName returns the active engine's name, or "" when none is set.
func (s *Speaker) EngineName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return ""
	}
	return s.engine.Name()
}

// SetVolume clamps v into [0,1], stores it for future playback, and
// applies it to the playback in progress.
func (s *Speaker) SetVolume(v float64) {
	v = ClampVolume(v)
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	s.sink.SetVolume(v)
}

// Volume returns the current playback volume.
func (s *Speaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Shutdown stops playback, waits for in-flight synthesis goroutines, and
// releases the engine. Subsequent Speak calls fail with ErrSpeakerStopped.
// Safe to call more than once.
func (s *Speaker) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	engine := s.engine
	s.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	s.sink.Stop()
	s.wg.Wait()
	if engine != nil {
		engine.Cleanup()
	}
}
