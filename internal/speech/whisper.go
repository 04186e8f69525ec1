package speech

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"

	"jarvis/internal/audio"
	"jarvis/pkg/stt"
)

var ErrAlreadyStarted = errors.New("recognition already started")

// Listener yields one endpointed utterance per call.
type Listener interface {
	Listen(ctx context.Context, onStart func()) ([]float32, error)
}

type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm []float32, opt stt.Options) (stt.Result, error)
}

// WhisperRecognizer runs a listen/transcribe loop on the microphone. A session
// ends with EventEnd after an error or Abort, like a browser recognizer would.
type WhisperRecognizer struct {
	listener Listener
	stt      Transcriber
	opts     stt.Options
	events   chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewWhisperRecognizer(l Listener, t Transcriber, opts stt.Options) *WhisperRecognizer {
	return &WhisperRecognizer{
		listener: l,
		stt:      t,
		opts:     opts,
		events:   make(chan Event, 32),
	}
}

func (r *WhisperRecognizer) Events() <-chan Event {
	return r.events
}

func (r *WhisperRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.run(ctx)

	return nil
}

func (r *WhisperRecognizer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
}

func (r *WhisperRecognizer) run(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.cancel()
		r.cancel = nil
		r.mu.Unlock()
		r.events <- Event{Kind: EventEnd}
	}()

	for {
		pcm, err := r.listener.Listen(ctx, func() {
			r.events <- Event{Kind: EventSpeechStart}
		})
		if err != nil {
			r.events <- Event{Kind: EventError, Code: listenErrorCode(ctx, err), Err: err}
			return
		}

		res, err := r.stt.TranscribePCM(ctx, pcm, r.opts)
		if err != nil {
			if ctx.Err() != nil {
				r.events <- Event{Kind: EventError, Code: CodeAborted, Err: err}
				return
			}
			log.Warn("Transcription failed", "err", err)
			r.events <- Event{Kind: EventNoMatch}
			continue
		}

		text := stt.Clean(res.Text)
		if text == "" {
			r.events <- Event{Kind: EventNoMatch}
			continue
		}

		log.Debug("Final result", "text", text, "lang", res.Language)
		r.events <- Event{Kind: EventResult, Text: text}
	}
}

func listenErrorCode(ctx context.Context, err error) ErrorCode {
	switch {
	case ctx.Err() != nil:
		return CodeAborted
	case errors.Is(err, audio.ErrNoSpeech):
		return CodeNoSpeech
	case strings.Contains(strings.ToLower(err.Error()), "permission"):
		return CodeNotAllowed
	}
	return CodeAudioCapture
}
