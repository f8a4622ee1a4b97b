// Package mock provides a mock speech engine for testing.
package mock

import (
	"context"
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/IsHPDuwu/classvoice/speech"
)

// Engine implements the speech engine interface for testing. It writes a
// short silent wav file for every synthesis and records what it was asked
// to say. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// Test control
	delay        time.Duration
	shouldFail   bool
	failureError error
	available    bool

	// State
	name      string
	voice     string
	callCount int
	texts     []string
	cleanedUp bool
}

// New creates a mock engine named "mock".
func New() *Engine {
	return &Engine{
		name:      "mock",
		available: true,
		voice:     "mock-voice-1",
	}
}

// NewNamed creates a mock engine with a custom registry name so tests can
// exercise name-dependent behavior, like the mp3 extension of "edge".
func NewNamed(name string) *Engine {
	e := New()
	e.name = name
	return e
}

func (e *Engine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// Available returns the mock availability state.
func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// Synthesize writes a minimal wav file to outPath, honoring the simulated
// delay, the configured failure, and context cancellation.
func (e *Engine) Synthesize(ctx context.Context, text, outPath string) error {
	e.mu.Lock()
	e.callCount++
	e.texts = append(e.texts, text)
	fail := e.shouldFail
	failErr := e.failureError
	delay := e.delay
	e.mu.Unlock()

	if fail {
		return failErr
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return writeSilentWav(outPath)
}

// writeSilentWav emits a valid one-tenth second 22.05kHz mono PCM wav.
func writeSilentWav(path string) error {
	const (
		sampleRate = 22050
		samples    = sampleRate / 10
	)
	data := make([]byte, samples*2)

	buf := make([]byte, 0, 44+len(data))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(data)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate*2)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)

	return os.WriteFile(path, buf, 0o644)
}

// Voices returns a fixed set of mock voices.
func (e *Engine) Voices() []speech.Voice {
	return []speech.Voice{
		{ID: "mock-voice-1", Name: "Mock Voice 1", Locale: "en-US"},
		{ID: "mock-voice-2", Name: "Mock Voice 2", Locale: "zh-CN"},
	}
}

// SetVoice sets the active voice without validation.
func (e *Engine) SetVoice(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = id
}

func (e *Engine) CurrentVoice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice
}

// Stop is a no-op for the mock.
func (e *Engine) Stop() {}

// Cleanup marks the engine cleaned up and unavailable.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanedUp = true
	e.available = false
}

// Test control methods

// SetDelay sets the simulated synthesis delay.
func (e *Engine) SetDelay(delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = delay
}

// SetFailure configures Synthesize to fail with the given error.
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = true
	e.failureError = err
}

// ClearFailure resets the engine to normal operation.
func (e *Engine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = false
	e.failureError = nil
}

// SetAvailable overrides the availability probe result.
func (e *Engine) SetAvailable(available bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = available
}

// CallCount returns the number of Synthesize calls so far.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// Texts returns every text passed to Synthesize, in order.
func (e *Engine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.texts))
	copy(out, e.texts)
	return out
}

// CleanedUp reports whether Cleanup has been called.
func (e *Engine) CleanedUp() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleanedUp
}
