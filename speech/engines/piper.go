package engines

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/IsHPDuwu/classvoice/speech"
)

// PiperEngine synthesizes speech with a local piper binary and an onnx
// voice model. Fully offline; output is wav. Each voice is one model file
// in the data directory.
type PiperEngine struct {
	binary  string
	dataDir string

	mu     sync.Mutex
	model  string
	cancel context.CancelFunc
	closed bool
}

// NewPiperEngine creates a piper backed engine. It fails when the binary
// is missing or no voice model can be located; in auto mode that failure
// just moves selection on to the next variant.
func NewPiperEngine(cfg speech.PiperConfig, voice string) (*PiperEngine, error) {
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("piper binary %q not found: %w", cfg.Binary, err)
	}

	dataDir := speech.ExpandPath(cfg.DataDir)
	e := &PiperEngine{binary: binary, dataDir: dataDir}

	model, err := e.resolveModel(cfg, voice)
	if err != nil {
		return nil, err
	}
	e.model = model
	log.Debug("piper model resolved", "model", model)
	return e, nil
}

// resolveModel picks the voice model: an explicit config path wins, then
// the requested voice inside the data directory, then the first model
// found there.
func (e *PiperEngine) resolveModel(cfg speech.PiperConfig, voice string) (string, error) {
	if cfg.Model != "" {
		model := speech.ExpandPath(cfg.Model)
		if _, err := os.Stat(model); err != nil {
			return "", fmt.Errorf("piper model %q: %w", cfg.Model, err)
		}
		return model, nil
	}

	if voice != "" {
		if model := e.modelForVoice(voice); model != "" {
			return model, nil
		}
	}

	models, err := filepath.Glob(filepath.Join(e.dataDir, "*.onnx"))
	if err == nil && len(models) > 0 {
		return models[0], nil
	}
	return "", fmt.Errorf("no piper voice model in %q", e.dataDir)
}

// modelForVoice maps a voice id to its model path, or "" when absent.
func (e *PiperEngine) modelForVoice(id string) string {
	model := filepath.Join(e.dataDir, id+".onnx")
	if _, err := os.Stat(model); err != nil {
		return ""
	}
	return model
}

// piperAvailable returns the availability probe for the piper variant.
func piperAvailable(cfg speech.PiperConfig) func() bool {
	return func() bool {
		_, err := exec.LookPath(cfg.Binary)
		return err == nil
	}
}

func (e *PiperEngine) Name() string { return "piper" }

func (e *PiperEngine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Synthesize feeds text to piper over stdin and writes wav to outPath.
func (e *PiperEngine) Synthesize(ctx context.Context, text, outPath string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return speech.ErrEngineClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	model := e.model
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	cmd := exec.CommandContext(ctx, e.binary,
		"--model", model,
		"--output_file", outPath)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("piper failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("piper produced no output: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(outPath)
		return speech.ErrEmptySynthesis
	}
	return nil
}

// Voices lists the onnx models in the data directory, one voice each.
// Model names follow the zh_CN-huayan-medium pattern; the leading tag
// becomes the locale.
func (e *PiperEngine) Voices() []speech.Voice {
	models, err := filepath.Glob(filepath.Join(e.dataDir, "*.onnx"))
	if err != nil || len(models) == 0 {
		return nil
	}

	voices := make([]speech.Voice, 0, len(models))
	for _, model := range models {
		id := strings.TrimSuffix(filepath.Base(model), ".onnx")
		voices = append(voices, speech.Voice{
			ID:     id,
			Name:   id,
			Locale: piperLocale(id),
		})
	}
	return voices
}

func piperLocale(id string) string {
	tag, _, found := strings.Cut(id, "-")
	if !found {
		return ""
	}
	return strings.ReplaceAll(tag, "_", "-")
}

// SetVoice switches to another model from the data directory. Unknown ids
// keep the current model.
func (e *PiperEngine) SetVoice(id string) {
	model := e.modelForVoice(id)
	if model == "" {
		log.Warn("unknown piper voice, keeping current", "voice", id)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = model
}

func (e *PiperEngine) CurrentVoice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.TrimSuffix(filepath.Base(e.model), ".onnx")
}

func (e *PiperEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *PiperEngine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.closed = true
}
