package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const SampleRate = 16000

var ErrNoSpeech = errors.New("no speech detected")

type RecorderConfig struct {
	FrameSize        int           // samples per read, 320 = 20ms
	SilenceThreshold float64       // frame RMS above this counts as speech
	SilenceDuration  time.Duration // trailing silence that ends an utterance
	MaxLength        time.Duration // hard cap on a single utterance
	IdleWindow       time.Duration // give up with ErrNoSpeech after this long without speech
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		FrameSize:        320,
		SilenceThreshold: 0.015,
		SilenceDuration:  600 * time.Millisecond,
		MaxLength:        10 * time.Second,
		IdleWindow:       8 * time.Second,
	}
}

// Recorder captures utterances from the default input device.
type Recorder struct {
	cfg RecorderConfig

	once    sync.Once
	initErr error
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.FrameSize <= 0 {
		cfg = DefaultRecorderConfig()
	}
	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	r.once.Do(func() {
		r.initErr = portaudio.Initialize()
	})
	return r.initErr
}

func (r *Recorder) Close() {
	if r.initErr == nil {
		portaudio.Terminate()
	}
}

// Listen blocks until one utterance has been captured. onStart is called once
// when speech onset is detected.
func (r *Recorder) Listen(ctx context.Context, onStart func()) ([]float32, error) {
	if err := r.Init(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buf := make([]float32, r.cfg.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	ep := NewEndpointer(r.cfg)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input stream: %w", err)
		}

		switch ep.Feed(buf) {
		case EndpointOnset:
			if onStart != nil {
				onStart()
			}
		case EndpointDone:
			return ep.Samples(), nil
		case EndpointIdle:
			return nil, ErrNoSpeech
		}
	}
}

type EndpointEvent int

const (
	EndpointNone EndpointEvent = iota
	EndpointOnset
	EndpointDone
	EndpointIdle
)

// Endpointer splits a frame stream into a single utterance using an RMS gate.
type Endpointer struct {
	cfg      RecorderConfig
	frameDur time.Duration
	speaking bool
	silence  time.Duration
	idle     time.Duration
	length   time.Duration
	out      []float32
}

func NewEndpointer(cfg RecorderConfig) *Endpointer {
	return &Endpointer{
		cfg:      cfg,
		frameDur: time.Duration(cfg.FrameSize) * time.Second / SampleRate,
		out:      make([]float32, 0, SampleRate*3),
	}
}

// Feed consumes one frame. The frame is copied.
func (e *Endpointer) Feed(frame []float32) EndpointEvent {
	loud := frameRMS(frame) > e.cfg.SilenceThreshold

	if !e.speaking {
		if !loud {
			e.idle += e.frameDur
			if e.cfg.IdleWindow > 0 && e.idle >= e.cfg.IdleWindow {
				return EndpointIdle
			}
			return EndpointNone
		}
		e.speaking = true
		e.out = append(e.out, frame...)
		e.length += e.frameDur
		return EndpointOnset
	}

	e.out = append(e.out, frame...)
	e.length += e.frameDur

	if loud {
		e.silence = 0
	} else {
		e.silence += e.frameDur
		if e.silence >= e.cfg.SilenceDuration {
			return EndpointDone
		}
	}

	if e.cfg.MaxLength > 0 && e.length >= e.cfg.MaxLength {
		return EndpointDone
	}

	return EndpointNone
}

func (e *Endpointer) Samples() []float32 {
	return e.out
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
