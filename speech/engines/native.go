package engines

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/IsHPDuwu/classvoice/speech"
)

// NativeEngine synthesizes speech through the operating system's own
// facility: `say` on macOS, System.Speech via PowerShell on Windows.
// Output is wav, no network involved.
type NativeEngine struct {
	sampleRate int
	voice      string

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewNativeEngine creates the OS speech engine. It fails on platforms
// without a built-in synthesizer.
func NewNativeEngine(cfg speech.NativeConfig, voice string) (*NativeEngine, error) {
	if !nativeAvailable() {
		return nil, fmt.Errorf("no OS speech facility on %s: %w",
			runtime.GOOS, speech.ErrEngineUnavailable)
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 22050
	}
	return &NativeEngine{sampleRate: rate, voice: voice}, nil
}

// nativeAvailable probes for the platform synthesizer command.
func nativeAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		_, err := exec.LookPath("say")
		return err == nil
	case "windows":
		_, err := exec.LookPath("powershell")
		return err == nil
	default:
		return false
	}
}

func (e *NativeEngine) Name() string { return "native" }

func (e *NativeEngine) Available() bool { return nativeAvailable() }

// Synthesize writes wav audio for text to outPath using the platform
// synthesizer.
func (e *NativeEngine) Synthesize(ctx context.Context, text, outPath string) error {
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

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		args := []string{
			"-o", outPath,
			fmt.Sprintf("--data-format=LEI16@%d", e.sampleRate),
		}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		args = append(args, text)
		cmd = exec.CommandContext(ctx, "say", args...)
	case "windows":
		cmd = exec.CommandContext(ctx, "powershell",
			"-NoProfile", "-NonInteractive", "-Command",
			windowsSpeechScript(voice))
		cmd.Stdin = strings.NewReader(text)
		cmd.Env = append(os.Environ(), "CLASSVOICE_OUT="+outPath)
	default:
		return fmt.Errorf("no OS speech facility on %s: %w",
			runtime.GOOS, speech.ErrEngineUnavailable)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s synthesis failed: %w (stderr: %s)",
			runtime.GOOS, err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("synthesizer produced no output: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(outPath)
		return speech.ErrEmptySynthesis
	}
	return nil
}

// windowsSpeechScript builds the PowerShell program that reads text from
// stdin and saves it as a wav file. The output path travels through an
// environment variable to dodge quoting issues.
func windowsSpeechScript(voice string) string {
	var b strings.Builder
	b.WriteString("Add-Type -AssemblyName System.Speech; ")
	b.WriteString("$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; ")
	if voice != "" {
		fmt.Fprintf(&b, "$s.SelectVoice('%s'); ", strings.ReplaceAll(voice, "'", "''"))
	}
	b.WriteString("$s.SetOutputToWaveFile($env:CLASSVOICE_OUT); ")
	b.WriteString("$s.Speak([Console]::In.ReadToEnd()); ")
	b.WriteString("$s.Dispose()")
	return b.String()
}

// Voices lists what the platform synthesizer reports. Best effort; nil on
// unsupported platforms or probe failure.
func (e *NativeEngine) Voices() []speech.Voice {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch runtime.GOOS {
	case "darwin":
		out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
		if err != nil {
			log.Warn("voice listing failed", "engine", e.Name(), "err", err)
			return nil
		}
		return parseSayVoices(string(out))
	case "windows":
		out, err := exec.CommandContext(ctx, "powershell",
			"-NoProfile", "-NonInteractive", "-Command",
			"Add-Type -AssemblyName System.Speech; "+
				"(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | "+
				"ForEach-Object { $i = $_.VoiceInfo; \"$($i.Name)`t$($i.Culture)\" }").Output()
		if err != nil {
			log.Warn("voice listing failed", "engine", e.Name(), "err", err)
			return nil
		}
		var voices []speech.Voice
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			parts := strings.SplitN(strings.TrimRight(line, "\r"), "\t", 2)
			if parts[0] == "" {
				continue
			}
			v := speech.Voice{ID: parts[0], Name: parts[0]}
			if len(parts) == 2 {
				v.Locale = parts[1]
			}
			voices = append(voices, v)
		}
		return voices
	default:
		return nil
	}
}

// parseSayVoices reads `say -v ?` output, one voice per line:
//
//	Alex                en_US    # Most people recognize me by my voice.
func parseSayVoices(output string) []speech.Voice {
	var voices []speech.Voice
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "#")
		if idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		locale := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")
		voices = append(voices, speech.Voice{
			ID:     name,
			Name:   name,
			Locale: strings.ReplaceAll(locale, "_", "-"),
		})
	}
	return voices
}

func (e *NativeEngine) SetVoice(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = id
}

func (e *NativeEngine) CurrentVoice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice
}

func (e *NativeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *NativeEngine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.closed = true
}
