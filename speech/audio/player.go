// Package audio plays synthesized speech files on the system audio device.
package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/IsHPDuwu/classvoice/speech"
)

// outputRate is the fixed mixer sample rate; decoded sources at other
// rates get resampled.
const outputRate = beep.SampleRate(44100)

// resampleQuality trades CPU for fidelity; 4 is fine for speech.
const resampleQuality = 4

// playback is one file being played: the Ctrl for detaching it from the
// mixer, the Volume wrapper for live adjustment, and the finish hook that
// must run exactly once however the playback ends.
type playback struct {
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	streamer beep.StreamSeekCloser
	done     func()
	once     sync.Once
}

// finish closes the source and fires the completion callback. Safe to call
// multiple times; only the first does anything.
func (p *playback) finish() {
	p.once.Do(func() {
		p.streamer.Close()
		if p.done != nil {
			p.done()
		}
	})
}

// Player implements the speech sink on top of the beep mixer. At most one
// file plays at a time; a new Play preempts the previous one. All methods
// are safe for concurrent use.
type Player struct {
	mu      sync.Mutex
	current *playback
	closed  bool
}

// NewPlayer opens the system audio device.
func NewPlayer() (*Player, error) {
	if err := speaker.Init(outputRate, outputRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("audio device init: %w", err)
	}
	return &Player{}, nil
}

// Play decodes the file at path and starts playing it, stopping any
// current playback first. done fires exactly once when this playback is
// finished with, whether it drained, was preempted, or was stopped.
func (p *Player) Play(path string, volume float64, done func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return speech.ErrSinkClosed
	}

	streamer, format, err := decode(path)
	if err != nil {
		return err
	}

	var source beep.Streamer = streamer
	if format.SampleRate != outputRate {
		source = beep.Resample(resampleQuality, format.SampleRate, outputRate, streamer)
	}

	next := &playback{streamer: streamer, done: done}
	next.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(source, beep.Callback(next.finish)),
	}
	next.vol = &effects.Volume{
		Streamer: next.ctrl,
		Base:     2,
		Volume:   volumeGain(volume),
		Silent:   volume <= 0,
	}

	prev := p.current
	p.current = next

	speaker.Lock()
	if prev != nil {
		prev.ctrl.Streamer = nil
	}
	speaker.Unlock()
	if prev != nil {
		prev.finish()
	}

	speaker.Play(next.vol)
	return nil
}

// decode opens the audio file and picks a decoder by extension.
func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open audio file: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%q: %w", path, speech.ErrUnknownFormat)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %q: %w", path, err)
	}
	return streamer, format, nil
}

// Stop halts the current playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	cur := p.current
	if cur == nil {
		return
	}
	p.current = nil

	speaker.Lock()
	cur.ctrl.Streamer = nil
	speaker.Unlock()
	cur.finish()
}

// SetVolume adjusts the live playback volume; future playbacks get their
// volume from Play.
func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	speaker.Lock()
	p.current.vol.Volume = volumeGain(volume)
	p.current.vol.Silent = volume <= 0
	speaker.Unlock()
}

// Close stops playback and releases the audio device. The Player is
// unusable afterwards.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stopLocked()
	p.closed = true
	speaker.Close()
}

// volumeGain maps a linear volume in (0,1] to the logarithmic gain the
// mixer expects, so 1.0 is unity and 0.5 is one halving.
func volumeGain(volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	if volume > 1 {
		volume = 1
	}
	return math.Log2(volume)
}
