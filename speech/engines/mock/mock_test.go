package mock

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMockSynthesizeWritesWav(t *testing.T) {
	e := New()
	out := filepath.Join(t.TempDir(), "out.wav")

	if err := e.Synthesize(context.Background(), "hello", out); err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Contains(data[:12], []byte("WAVE")) {
		t.Error("output is not a wav file")
	}

	if e.CallCount() != 1 {
		t.Errorf("CallCount() = %d, want 1", e.CallCount())
	}
	if texts := e.Texts(); len(texts) != 1 || texts[0] != "hello" {
		t.Errorf("Texts() = %v", texts)
	}
}

func TestMockFailure(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	e.SetFailure(boom)

	err := e.Synthesize(context.Background(), "x", filepath.Join(t.TempDir(), "out.wav"))
	if !errors.Is(err, boom) {
		t.Errorf("Synthesize() = %v, want configured failure", err)
	}

	e.ClearFailure()
	if err := e.Synthesize(context.Background(), "x", filepath.Join(t.TempDir(), "out.wav")); err != nil {
		t.Errorf("Synthesize() after ClearFailure = %v", err)
	}
}

func TestMockDelayHonorsContext(t *testing.T) {
	e := New()
	e.SetDelay(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.Synthesize(ctx, "x", filepath.Join(t.TempDir(), "out.wav"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Synthesize() = %v, want DeadlineExceeded", err)
	}
}

func TestMockCleanup(t *testing.T) {
	e := New()
	if !e.Available() {
		t.Fatal("new mock should be available")
	}

	e.Cleanup()
	if e.Available() {
		t.Error("cleaned up mock should be unavailable")
	}
	if !e.CleanedUp() {
		t.Error("CleanedUp() should report true")
	}
}

func TestMockNamed(t *testing.T) {
	e := NewNamed("edge")
	if e.Name() != "edge" {
		t.Errorf("Name() = %q, want edge", e.Name())
	}

	e.SetVoice("mock-voice-2")
	if e.CurrentVoice() != "mock-voice-2" {
		t.Errorf("CurrentVoice() = %q", e.CurrentVoice())
	}
}
