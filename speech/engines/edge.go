package engines

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/IsHPDuwu/classvoice/speech"
)

// fallbackEdgeVoice is used when voice enumeration fails, e.g. offline.
var fallbackEdgeVoice = speech.Voice{
	ID:     "zh-CN-XiaoxiaoNeural",
	Name:   "Xiaoxiao",
	Locale: "zh-CN",
}

// EdgeEngine synthesizes speech through the edge-tts command line tool,
// which wraps Microsoft's cloud neural voices. Every synthesis spawns a
// fresh process; output is mp3.
type EdgeEngine struct {
	command []string
	voice   string

	// Rate limiting so a burst of notifications cannot hammer the cloud
	// endpoint and get the client blocked.
	rateLimiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewEdgeEngine creates an edge-tts backed engine. It fails when no
// synthesizer command can be resolved.
func NewEdgeEngine(cfg speech.EdgeConfig, voice string) (*EdgeEngine, error) {
	command := resolveEdgeCommand(cfg)
	if command == nil {
		return nil, fmt.Errorf("edge-tts not found on PATH and no command configured")
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}

	return &EdgeEngine{
		command:     command,
		voice:       voice,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}, nil
}

// resolveEdgeCommand picks the synthesizer invocation: the configured
// command if set, the edge-tts binary if installed, otherwise the module
// form through python3. Returns nil when nothing is usable.
func resolveEdgeCommand(cfg speech.EdgeConfig) []string {
	if cfg.Command != "" {
		return strings.Fields(cfg.Command)
	}
	if path, err := exec.LookPath("edge-tts"); err == nil {
		return []string{path}
	}
	if path, err := exec.LookPath("python3"); err == nil {
		return []string{path, "-m", "edge_tts"}
	}
	return nil
}

// edgeAvailable returns the availability probe for the edge variant.
func edgeAvailable(cfg speech.EdgeConfig) func() bool {
	return func() bool {
		return resolveEdgeCommand(cfg) != nil
	}
}

func (e *EdgeEngine) Name() string { return "edge" }

// Available reports whether the synthesizer command still resolves. The
// network itself is not probed; a dead connection surfaces as a synthesis
// error instead.
func (e *EdgeEngine) Available() bool {
	return len(e.command) > 0
}

// Synthesize runs edge-tts and writes mp3 audio to outPath.
func (e *EdgeEngine) Synthesize(ctx context.Context, text, outPath string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return speech.ErrEngineClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	voice := e.voice
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	args := append([]string{}, e.command[1:]...)
	args = append(args, "--text", text, "--write-media", outPath)
	if voice != "" {
		args = append(args, "--voice", voice)
	}

	cmd := exec.CommandContext(ctx, e.command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("edge-tts failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("edge-tts produced no output: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(outPath)
		return speech.ErrEmptySynthesis
	}
	return nil
}

// Voices lists the cloud voices via --list-voices. On any failure a single
// known-good voice is returned so callers always have something to offer.
func (e *EdgeEngine) Voices() []speech.Voice {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	args := append([]string{}, e.command[1:]...)
	args = append(args, "--list-voices")

	out, err := exec.CommandContext(ctx, e.command[0], args...).Output()
	if err != nil {
		log.Warn("edge voice listing failed, using fallback", "err", err)
		return []speech.Voice{fallbackEdgeVoice}
	}

	voices := parseEdgeVoices(string(out))
	if len(voices) == 0 {
		return []speech.Voice{fallbackEdgeVoice}
	}
	return voices
}

// parseEdgeVoices reads the table printed by edge-tts --list-voices. The
// first column is the voice id, e.g. zh-CN-XiaoxiaoNeural.
func parseEdgeVoices(output string) []speech.Voice {
	var voices []speech.Voice
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		id := fields[0]
		if id == "Name" || strings.HasPrefix(id, "-") {
			// header and separator rows
			continue
		}
		parts := strings.SplitN(id, "-", 3)
		if len(parts) < 3 {
			continue
		}
		voices = append(voices, speech.Voice{
			ID:     id,
			Name:   strings.TrimSuffix(parts[2], "Neural"),
			Locale: parts[0] + "-" + parts[1],
		})
	}
	return voices
}

func (e *EdgeEngine) SetVoice(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = id
}

func (e *EdgeEngine) CurrentVoice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice
}

// Stop aborts the in-flight synthesis process, if any.
func (e *EdgeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Cleanup stops any running synthesis and marks the engine closed.
func (e *EdgeEngine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.closed = true
}
