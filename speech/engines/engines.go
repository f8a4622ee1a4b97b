// Package engines contains the text-to-speech backend variants and the
// registry used to pick between them.
package engines

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/IsHPDuwu/classvoice/speech"
)

// Auto is the engine preference that means "first usable variant wins".
const Auto = "auto"

// Variant is one registered backend. Available is the cheap environment
// probe; New builds a ready engine and may fail (missing model files,
// broken install) even when Available reported true.
type Variant struct {
	Name      string
	Available func() bool
	New       func() (speech.Engine, error)
}

// Registry is an ordered list of variants. Order is the "auto" priority.
type Registry []Variant

// DefaultRegistry returns the built-in variants in priority order: the
// cloud-neural edge backend, then the OS speech facility, then the
// offline piper backend.
func DefaultRegistry(cfg speech.Config) Registry {
	return Registry{
		{
			Name:      "edge",
			Available: edgeAvailable(cfg.Edge),
			New: func() (speech.Engine, error) {
				return NewEdgeEngine(cfg.Edge, cfg.Voice)
			},
		},
		{
			Name:      "native",
			Available: nativeAvailable,
			New: func() (speech.Engine, error) {
				return NewNativeEngine(cfg.Native, cfg.Voice)
			},
		},
		{
			Name:      "piper",
			Available: piperAvailable(cfg.Piper),
			New: func() (speech.Engine, error) {
				return NewPiperEngine(cfg.Piper, cfg.Voice)
			},
		},
	}
}

// Create instantiates an engine according to preference. A concrete name
// selects exactly that variant and fails rather than falling back. Auto
// (or "") walks the registry in order and returns the first variant that
// is both available and constructible, skipping ones that fail.
func (r Registry) Create(preference string) (speech.Engine, error) {
	if preference == "" || preference == Auto {
		return r.createAuto()
	}

	for _, v := range r {
		if v.Name != preference {
			continue
		}
		if !available(v) {
			return nil, fmt.Errorf("engine %q: %w", v.Name, speech.ErrEngineUnavailable)
		}
		engine, err := v.New()
		if err != nil {
			return nil, fmt.Errorf("engine %q: %w", v.Name, err)
		}
		return engine, nil
	}
	return nil, fmt.Errorf("engine %q: %w", preference, speech.ErrUnknownEngine)
}

func (r Registry) createAuto() (speech.Engine, error) {
	for _, v := range r {
		if !available(v) {
			log.Debug("engine not available, skipping", "engine", v.Name)
			continue
		}
		engine, err := v.New()
		if err != nil {
			log.Warn("engine failed to start, skipping", "engine", v.Name, "err", err)
			continue
		}
		log.Info("engine selected", "engine", v.Name)
		return engine, nil
	}
	return nil, speech.ErrNoEngine
}

// Available returns the names of the variants whose probe succeeds, in
// registry order.
func (r Registry) Available() []string {
	var names []string
	for _, v := range r {
		if available(v) {
			names = append(names, v.Name)
		}
	}
	return names
}

// Names returns every registered variant name in order, usable or not.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for _, v := range r {
		names = append(names, v.Name)
	}
	return names
}

// Voices enumerates the voices of one named variant by constructing a
// throwaway engine. The engine is cleaned up before returning.
func (r Registry) Voices(name string) ([]speech.Voice, error) {
	for _, v := range r {
		if v.Name != name {
			continue
		}
		if !available(v) {
			return nil, fmt.Errorf("engine %q: %w", v.Name, speech.ErrEngineUnavailable)
		}
		engine, err := v.New()
		if err != nil {
			return nil, fmt.Errorf("engine %q: %w", v.Name, err)
		}
		defer engine.Cleanup()
		return engine.Voices(), nil
	}
	return nil, fmt.Errorf("engine %q: %w", name, speech.ErrUnknownEngine)
}

// available guards a variant probe so a misbehaving one cannot take down
// engine selection.
func available(v Variant) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("engine availability probe panicked", "engine", v.Name, "panic", r)
			ok = false
		}
	}()
	if v.Available == nil {
		return false
	}
	return v.Available()
}
