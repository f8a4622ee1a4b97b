// Package speech provides schedule-notification speech announcements: it
// turns structured notification events into spoken audio through one of
// several interchangeable text-to-speech backends.
package speech

import "context"

// Engine is the uniform contract implemented by every TTS backend variant.
// An engine only converts text into an audio file; playback is handled by
// the Speaker through an audio Sink.
type Engine interface {
	// Name returns the variant's registry name (e.g. "edge").
	Name() string

	// Available reports whether the current environment supports this
	// backend. It must be cheap, side-effect free, and must never panic.
	Available() bool

	// Synthesize writes a complete audio file for text at outPath. The
	// container format matches the engine's native output (mp3 for the
	// "edge" variant, wav for everything else). It is safe to call from
	// any goroutine.
	Synthesize(ctx context.Context, text, outPath string) error

	// Voices enumerates the voices this backend offers. Best effort: on
	// internal failure it returns nil rather than an error.
	Voices() []Voice

	// SetVoice switches the active voice. An unknown id is logged and the
	// previous voice is kept.
	SetVoice(id string)

	// CurrentVoice returns the active voice identifier, or "" for the
	// backend default.
	CurrentVoice() string

	// Stop interrupts an in-flight synthesis if the backend supports it.
	// Idempotent, never fails.
	Stop()

	// Cleanup releases all backend resources. After Cleanup the engine is
	// unusable. Idempotent, safe without prior successful use.
	Cleanup()
}

// Voice describes a single selectable voice of an engine.
type Voice struct {
	ID     string // backend identifier, passed to SetVoice
	Name   string // human-readable display name
	Locale string // BCP 47 language tag, may be empty
}

// Sink is the audio output a Speaker plays through. Implementations are
// safe for concurrent use; calls return promptly and never wait for
// playback to finish.
type Sink interface {
	// Play presents the audio file at path, stopping any current playback
	// first. The volume in [0,1] is applied before the first sample. done
	// is invoked exactly once when the source is finished with: at end of
	// stream, on preemption by a later Play, on Stop, or on Close.
	Play(path string, volume float64, done func()) error

	// Stop halts the current playback, if any.
	Stop()

	// SetVolume adjusts the volume of the live playback immediately.
	SetVolume(volume float64)

	// Close stops playback and releases the audio device.
	Close()
}

// Event is a notification pushed by the host. The ProviderID suffix selects
// the announcement template; Title and Message feed its placeholders.
type Event struct {
	ProviderID string `json:"provider_id"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

// EngineProvider creates engines by name. It is how the Service reaches
// the variant registry; tests substitute a fake with canned variants.
type EngineProvider interface {
	// Create instantiates the named engine, or the first usable one when
	// preference is "auto". A concrete name never falls back.
	Create(preference string) (Engine, error)

	// Available lists the variants whose environment probe succeeds.
	Available() []string

	// Names lists every variant, usable or not.
	Names() []string

	// Voices enumerates the voices of one named variant.
	Voices(name string) ([]Voice, error)
}

// ConfigStore persists configuration. Mutating operations on the Service
// call Save explicitly; the data model itself has no persistence hooks.
type ConfigStore interface {
	Save(cfg Config) error
}
