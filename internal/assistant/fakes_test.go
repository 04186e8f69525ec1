package assistant

import (
	"context"
	"sync"
	"testing"
	"time"

	"jarvis/internal/backend"
	"jarvis/internal/speech"
	"jarvis/internal/types"
)

type backendCall struct {
	text  string
	image string
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []backendCall
	reply func(text string) (types.Response, error)
	gate  chan struct{}
}

func (b *fakeBackend) SendMessage(ctx context.Context, text string, image string) (types.Response, error) {
	b.mu.Lock()
	b.calls = append(b.calls, backendCall{text: text, image: image})
	gate, reply := b.gate, b.reply
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return types.Response{}, ctx.Err()
		}
	}
	if reply == nil {
		return types.Response{Text: "Done."}, nil
	}
	return reply(text)
}

func (b *fakeBackend) Calls() []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendCall(nil), b.calls...)
}

type fakeMedia struct {
	openErr error
	frame   string
}

func (m *fakeMedia) Open(context.Context) error          { return m.openErr }
func (m *fakeMedia) CaptureFrame(context.Context) string { return m.frame }

type fakeRecognizer struct {
	events chan speech.Event

	mu       sync.Mutex
	starts   int
	aborts   int
	startErr error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan speech.Event, 16)}
}

func (r *fakeRecognizer) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	return nil
}

func (r *fakeRecognizer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborts++
}

func (r *fakeRecognizer) Events() <-chan speech.Event { return r.events }

func (r *fakeRecognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *fakeRecognizer) Aborts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborts
}

type fakeSynth struct {
	mu       sync.Mutex
	err      error
	block    bool
	release  chan struct{}
	cancelCh chan struct{}
	spoken   []string
}

func (s *fakeSynth) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	cancel := make(chan struct{})
	s.cancelCh = cancel
	block, err, release := s.block, s.err, s.release
	s.mu.Unlock()

	if !block {
		return err
	}

	select {
	case <-release:
		return err
	case <-cancel:
		return speech.ErrInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCh != nil {
		close(s.cancelCh)
		s.cancelCh = nil
	}
}

func (s *fakeSynth) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *fakeOpener) Open(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)
	return nil
}

func (o *fakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

type harness struct {
	m       *Machine
	backend *fakeBackend
	media   *fakeMedia
	rec     *fakeRecognizer
	synth   *fakeSynth
	opener  *fakeOpener

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		backend: &fakeBackend{},
		media:   &fakeMedia{},
		rec:     newFakeRecognizer(),
		synth:   &fakeSynth{},
		opener:  &fakeOpener{},
	}
	if opts.UserName == "" {
		opts.UserName = "Prabal"
	}

	h.m = New(Deps{
		Backend:     h.backend,
		Media:       h.media,
		Recognizer:  h.rec,
		Synthesizer: h.synth,
		Opener:      h.opener,
	}, opts)

	h.m.Subscribe(func(ev Event) {
		if ev.Kind != EventStateChanged {
			return
		}
		h.mu.Lock()
		h.states = append(h.states, ev.State)
		h.mu.Unlock()
	})

	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) States() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// spotifyReply answers like the backend does for "open Spotify".
func spotifyReply(string) (types.Response, error) {
	return types.Response{
		Text:   backend.Persona{UserName: "Prabal"}.OpeningApp("Spotify"),
		Action: &types.Action{Type: types.ActionOpenURL, URL: "spotify:"},
	}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return m.State() == want })
}

func (m *Machine) busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}
