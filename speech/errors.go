package speech

import (
	"errors"
	"fmt"
)

// Common errors for the speech subsystem.
var (
	// Engine errors
	ErrEngineUnavailable = errors.New("speech engine is not available")
	ErrUnknownEngine     = errors.New("unknown speech engine")
	ErrNoEngine          = errors.New("no speech engine could be created")
	ErrEngineClosed      = errors.New("speech engine has been cleaned up")
	ErrVoiceNotFound     = errors.New("requested voice not found")

	// Speaker errors
	ErrSpeakerStopped  = errors.New("speaker has been shut down")
	ErrNothingToSpeak  = errors.New("nothing to speak")
	ErrEmptySynthesis  = errors.New("engine produced an empty audio file")
	ErrTemplateUnknown = errors.New("unknown template key")

	// Sink errors
	ErrSinkClosed    = errors.New("audio sink is closed")
	ErrUnknownFormat = errors.New("unsupported audio container")
)

// SynthesisError wraps a backend failure during text-to-audio conversion,
// carrying the engine that produced it.
type SynthesisError struct {
	Engine string
	Err    error
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed on engine %q: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// NewSynthesisError wraps err as a synthesis failure of the named engine.
func NewSynthesisError(engine string, err error) *SynthesisError {
	return &SynthesisError{Engine: engine, Err: err}
}
