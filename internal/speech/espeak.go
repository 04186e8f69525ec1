package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

const (
	espeakDefaultPitch = 50  // 0..99
	espeakDefaultRate  = 175 // words per minute
)

// Player plays a decoded stream, blocking until done or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, s beep.Streamer, format beep.Format) error
}

// Ducker lowers other audio while the assistant speaks.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type EspeakOptions struct {
	Binary string // default "espeak-ng"
	Voice  VoicePreference
	Pitch  float64 // relative to the engine default, 1.0 = unchanged
	Rate   float64
	Player Player
	Ducker Ducker // optional
}

// Espeak synthesizes with the espeak-ng CLI and plays the result through
// Player. Only one utterance plays at a time.
type Espeak struct {
	bin    string
	pref   VoicePreference
	pitch  int
	rate   int
	player Player
	ducker Ducker

	voiceOnce sync.Once
	voice     Voice
	voiceOK   bool

	mu          sync.Mutex
	cancel      context.CancelFunc
	interrupted bool
}

func NewEspeak(opts EspeakOptions) *Espeak {
	if opts.Binary == "" {
		opts.Binary = "espeak-ng"
	}
	if opts.Pitch <= 0 {
		opts.Pitch = 1
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}

	return &Espeak{
		bin:    opts.Binary,
		pref:   opts.Voice,
		pitch:  min(int(math.Round(espeakDefaultPitch*opts.Pitch)), 99),
		rate:   int(math.Round(espeakDefaultRate * opts.Rate)),
		player: opts.Player,
		ducker: opts.Ducker,
	}
}

// Voices lists the engine's voices for the preferred language.
func (e *Espeak) Voices(ctx context.Context) ([]Voice, error) {
	arg := "--voices"
	if e.pref.Lang != "" {
		arg += "=" + e.pref.Lang
	}

	out, err := exec.CommandContext(ctx, e.bin, arg).Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", e.bin, arg, err)
	}
	return parseVoices(string(out)), nil
}

func (e *Espeak) selectVoice() (Voice, bool) {
	e.voiceOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		voices, err := e.Voices(ctx)
		if err != nil {
			log.Warn("Failed to list voices", "err", err)
			return
		}
		e.voice, e.voiceOK = SelectVoice(voices, e.pref)
		if e.voiceOK {
			log.Info("Selected voice", "name", e.voice.Name, "lang", e.voice.Lang)
		}
	})
	return e.voice, e.voiceOK
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.interrupted = false
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	err := e.speak(ctx, text)
	if err != nil && e.wasInterrupted() {
		return ErrInterrupted
	}
	return err
}

// Cancel interrupts the current utterance, if any.
func (e *Espeak) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.interrupted = true
		e.cancel()
	}
}

func (e *Espeak) wasInterrupted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupted
}

func (e *Espeak) speak(ctx context.Context, text string) error {
	voice, ok := e.selectVoice()
	if !ok {
		return &SynthesisError{Code: SynthVoiceUnavailable, Err: errors.New("no voices installed")}
	}

	f, err := os.CreateTemp("", "jarvis-*.wav")
	if err != nil {
		return &SynthesisError{Code: SynthFailed, Err: err}
	}
	defer os.Remove(f.Name())
	defer f.Close()

	args := []string{
		"-v", voice.ID,
		"-p", strconv.Itoa(e.pitch),
		"-s", strconv.Itoa(e.rate),
		"-w", f.Name(),
		"--", text,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SynthesisError{Code: classifyEspeak(err, stderr.String()), Err: err}
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return &SynthesisError{Code: SynthFailed, Err: fmt.Errorf("decode wav: %w", err)}
	}
	defer streamer.Close()

	if e.ducker != nil {
		if err := e.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other audio", "err", err)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := e.ducker.Restore(rctx); err != nil {
				log.Warn("Failed to restore other audio", "err", err)
			}
		}()
	}

	if err := e.player.Play(ctx, streamer, format); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SynthesisError{Code: SynthAudioBusy, Err: err}
	}

	return nil
}

func classifyEspeak(err error, stderr string) SynthesisCode {
	if errors.Is(err, exec.ErrNotFound) {
		return SynthFailed
	}

	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "voice"):
		return SynthVoiceUnavailable
	case strings.Contains(s, "network"), strings.Contains(s, "connection"):
		return SynthNetwork
	case s != "":
		return SynthFailed
	}
	return SynthUnknown
}
