// Package assistant implements the interaction state machine: wake-word and
// manual activation, live mode, the single in-flight request latch and the
// session transcript.
package assistant

import (
	"context"
	"errors"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"jarvis/internal/launch"
	"jarvis/internal/speech"
	"jarvis/internal/types"
)

const (
	DefaultWakeWord      = "jarvis"
	DefaultListenTimeout = 2 * time.Second

	restartBase = 250 * time.Millisecond
	restartMax  = 5 * time.Second
)

var stopRe = regexp.MustCompile(`(?i)\bstop\b`)

type Backend interface {
	SendMessage(ctx context.Context, text string, image string) (types.Response, error)
}

// Media is the capture side: acquired once at start, then asked for frames.
type Media interface {
	Open(ctx context.Context) error
	CaptureFrame(ctx context.Context) string
}

type Opener interface {
	Open(url string) error
}

type Chime interface {
	Play(ctx context.Context) error
}

type Deps struct {
	Backend     Backend
	Media       Media
	Recognizer  speech.Recognizer
	Synthesizer speech.Synthesizer
	Opener      Opener
	Chime       Chime // optional
}

type Options struct {
	WakeWord      string
	ListenTimeout time.Duration
	UserName      string
}

type Machine struct {
	deps    Deps
	timeout time.Duration
	wakeRe  *regexp.Regexp
	msgs    messages

	transcript *Transcript

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	errMsg      string
	processing  bool
	manual      bool
	live        bool
	denied      bool // recognition or media permission refused, no restarts
	recognizing bool
	failures    int
	demote      *time.Timer
	demoteGen   int
	restart     *time.Timer
	closed      bool
	speakCancel context.CancelFunc // current utterance

	notifyMu  sync.Mutex
	pending   []Event
	observers []func(Event)
}

func New(deps Deps, opts Options) *Machine {
	if opts.WakeWord == "" {
		opts.WakeWord = DefaultWakeWord
	}
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = DefaultListenTimeout
	}
	if opts.UserName == "" {
		opts.UserName = "sir"
	}

	m := &Machine{
		deps:    deps,
		timeout: opts.ListenTimeout,
		wakeRe:  regexp.MustCompile(`(?i)` + regexp.QuoteMeta(opts.WakeWord)),
		msgs:    messages{user: opts.UserName, wake: opts.WakeWord},
		state:   StateIdle,
	}
	m.transcript = NewTranscript(types.ChatMessage{Role: types.RoleModel, Content: m.msgs.greeting()})
	m.ctx, m.cancel = context.WithCancel(context.Background())

	return m
}

// Subscribe registers an observer. Observers run in order of the changes and
// must not call back into the machine.
func (m *Machine) Subscribe(fn func(Event)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Start acquires media and arms recognition. A failure leaves the machine in
// ERROR with the matching banner and is also returned.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.deps.Media.Open(ctx); err != nil {
		log.Error("Failed to acquire media", "err", err)

		m.mu.Lock()
		m.denied = true
		m.setErrorLocked(msgMediaPermission)
		m.setStateLocked(StateError)
		m.unlock()

		return err
	}

	m.wg.Add(1)
	go m.run()

	m.mu.Lock()
	defer m.unlock()

	if err := m.deps.Recognizer.Start(m.ctx); err != nil {
		log.Error("Failed to start recognition", "err", err)
		m.setErrorLocked(msgRecognitionStart)
		m.setStateLocked(StateError)
		return err
	}
	m.recognizing = true

	return nil
}

// Close stops recognition, synthesis and pending timers, and waits for the
// in-flight request to wind down.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopDemoteLocked()
	if m.restart != nil {
		m.restart.Stop()
	}
	m.mu.Unlock()

	m.cancel()
	m.deps.Recognizer.Abort()
	m.deps.Synthesizer.Cancel()
	m.wg.Wait()
}

func (m *Machine) run() {
	defer m.wg.Done()

	events := m.deps.Recognizer.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-events:
			m.handleRecognition(ev)
		}
	}
}

func (m *Machine) handleRecognition(ev speech.Event) {
	switch ev.Kind {
	case speech.EventResult:
		m.mu.Lock()
		m.failures = 0
		m.mu.Unlock()
		m.OnFinalTranscript(ev.Text)

	case speech.EventSpeechStart:
		m.mu.Lock()
		if m.state == StateListening {
			m.stopDemoteLocked()
		}
		m.mu.Unlock()

	case speech.EventNoMatch:
		m.mu.Lock()
		if m.state == StateListening && m.demote == nil {
			m.armDemoteLocked()
		}
		m.mu.Unlock()

	case speech.EventError:
		switch ev.Code.Class() {
		case speech.ClassTransient:
			log.Debug("Recognition interrupted", "code", ev.Code)

		case speech.ClassPermission:
			log.Error("Recognition permission denied", "code", ev.Code, "err", ev.Err)
			m.mu.Lock()
			m.denied = true
			m.manual = false
			m.setErrorLocked(msgRecognitionPermission)
			m.setStateLocked(StateError)
			m.stopSpeakingLocked()
			m.unlock()
			m.deps.Recognizer.Abort()

		default:
			log.Error("Recognition error", "code", ev.Code, "err", ev.Err)
			m.mu.Lock()
			m.failures++
			m.mu.Unlock()
		}

	case speech.EventEnd:
		m.mu.Lock()
		m.recognizing = false
		m.restartRecognitionLocked()
		m.mu.Unlock()
	}
}

// OnFinalTranscript applies the dispatch policy to one final recognition result.
func (m *Machine) OnFinalTranscript(text string) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	defer m.unlock()

	if m.state == StateSpeaking && stopRe.MatchString(text) {
		log.Info("Stop requested by voice")
		m.stopSpeakingLocked()
		return
	}

	if m.processing || text == "" {
		return
	}

	if m.live {
		m.processLocked(text)
		return
	}

	if m.manual {
		m.manual = false
		m.processLocked(text)
		return
	}

	command, ok := m.extractCommand(text)
	if !ok {
		return
	}
	if command == "" {
		m.activateLocked()
		return
	}
	m.processLocked(command)
}

// extractCommand returns the text after the last wake word occurrence.
func (m *Machine) extractCommand(text string) (string, bool) {
	matches := m.wakeRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return "", false
	}

	rest := text[matches[len(matches)-1][1]:]
	return strings.TrimSpace(strings.TrimLeft(rest, " \t,.!?:;-")), true
}

// SendText dispatches typed text like a spoken command.
func (m *Machine) SendText(text string) {
	m.mu.Lock()
	defer m.unlock()
	m.processLocked(text)
}

// Activate starts listening for one command without a wake word. It only acts
// from IDLE or ERROR and reports whether it did.
func (m *Machine) Activate() bool {
	m.mu.Lock()
	defer m.unlock()

	if !m.state.Available() || m.processing {
		return false
	}
	m.activateLocked()
	return true
}

func (m *Machine) StopSpeaking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopSpeakingLocked()
}

func (m *Machine) stopSpeakingLocked() {
	if m.speakCancel != nil {
		m.speakCancel()
	}
	m.deps.Synthesizer.Cancel()
}

// haltedLocked reports a permission failure that arrived while a request was
// in flight. The reply is then recorded but not spoken, and ERROR stays.
func (m *Machine) haltedLocked() bool {
	return m.denied && m.state == StateError
}

func (m *Machine) SetLiveMode(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live != on {
		log.Info("Live mode", "on", on)
	}
	m.live = on
}

func (m *Machine) LiveMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Error is the current banner text, "" when none.
func (m *Machine) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

func (m *Machine) Transcript() []types.ChatMessage {
	return m.transcript.Messages()
}

func (m *Machine) activateLocked() {
	m.setErrorLocked("")
	m.manual = true
	m.setStateLocked(StateListening)
	m.armDemoteLocked()

	if m.deps.Chime != nil {
		go func() {
			if err := m.deps.Chime.Play(m.ctx); err != nil {
				log.Debug("Failed to play chime", "err", err)
			}
		}()
	}
}

func (m *Machine) armDemoteLocked() {
	m.stopDemoteLocked()

	gen := m.demoteGen
	m.demote = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		defer m.unlock()

		if gen != m.demoteGen || m.state != StateListening {
			return
		}
		m.demote = nil
		m.manual = false
		m.setStateLocked(StateIdle)
	})
}

func (m *Machine) stopDemoteLocked() {
	m.demoteGen++
	if m.demote != nil {
		m.demote.Stop()
		m.demote = nil
	}
}

// processLocked is the entry point of a command. Blank text or a held latch
// never dispatches.
func (m *Machine) processLocked(text string) {
	if m.processing {
		return
	}
	if strings.TrimSpace(text) == "" {
		m.setStateLocked(StateIdle)
		return
	}
	if m.closed {
		return
	}

	m.processing = true
	m.appendLocked(types.ChatMessage{Role: types.RoleUser, Content: text})
	m.setStateLocked(StateThinking)

	m.wg.Add(1)
	go m.respond(text)
}

func (m *Machine) respond(command string) {
	defer m.wg.Done()

	ctx := m.ctx
	frame := m.deps.Media.CaptureFrame(ctx)

	resp, err := m.deps.Backend.SendMessage(ctx, command, frame)
	if err != nil {
		m.mu.Lock()
		defer m.unlock()

		m.processing = false
		if ctx.Err() != nil {
			return
		}

		log.Error("Backend request failed", "err", err)
		if m.haltedLocked() {
			return
		}
		msg := m.msgs.requestFailed()
		m.appendLocked(types.ChatMessage{Role: types.RoleModel, Content: msg})
		m.setErrorLocked(msg)
		m.setStateLocked(StateError)
		return
	}

	m.perform(resp.Action)

	m.mu.Lock()
	m.appendLocked(types.ChatMessage{Role: types.RoleModel, Content: resp.Text, Sources: resp.Sources})
	if m.haltedLocked() {
		m.processing = false
		m.manual = false
		m.unlock()
		return
	}
	speakCtx, cancel := context.WithCancel(ctx)
	m.speakCancel = cancel
	m.setStateLocked(StateSpeaking)
	m.unlock()

	err = m.deps.Synthesizer.Speak(speakCtx, resp.Text)

	m.mu.Lock()
	defer m.unlock()

	m.speakCancel = nil
	stopped := speakCtx.Err() != nil
	cancel()

	m.processing = false
	m.manual = false

	switch {
	case ctx.Err() != nil:
	case m.haltedLocked():
	case err == nil, errors.Is(err, speech.ErrInterrupted), stopped:
		m.setStateLocked(StateIdle)
	default:
		code := speech.SynthesisCodeOf(err)
		log.Error("Speech synthesis failed", "code", code, "err", err)
		m.setErrorLocked(m.msgs.synthesis(code))
		m.setStateLocked(StateError)
	}
}

// perform runs the action of a reply. A bad action is dropped; the reply
// text is kept regardless.
func (m *Machine) perform(action *types.Action) {
	if action == nil || action.Type != types.ActionOpenURL || action.URL == "" {
		return
	}

	if _, err := launch.Validate(action.URL); err != nil {
		log.Error("Model returned an invalid URL", "url", action.URL, "err", err)
		return
	}
	if err := m.deps.Opener.Open(action.URL); err != nil {
		log.Error("Failed to open URL", "url", action.URL, "err", err)
	}
}

// restartRecognitionLocked re-arms an ended recognizer unless the machine is
// busy, in ERROR or denied. Deferred restarts happen on the next return to
// IDLE or LISTENING.
func (m *Machine) restartRecognitionLocked() {
	if m.recognizing || m.restart != nil || m.denied || m.closed {
		return
	}
	if m.processing || m.state == StateError {
		return
	}

	delay := backoff(m.failures)
	if delay == 0 {
		m.startRecognitionLocked()
		return
	}

	log.Debug("Delaying recognition restart", "delay", delay, "failures", m.failures)
	m.restart = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.restart = nil
		if m.recognizing || m.denied || m.closed || m.processing || m.state == StateError {
			return
		}
		m.startRecognitionLocked()
	})
}

func (m *Machine) startRecognitionLocked() {
	if err := m.deps.Recognizer.Start(m.ctx); err != nil {
		if errors.Is(err, speech.ErrAlreadyStarted) {
			m.recognizing = true
			return
		}
		log.Warn("Recognition restart failed, will retry", "err", err)
		m.failures++
		m.restartRecognitionLocked()
		return
	}
	m.recognizing = true
}

// backoff is 0 for the first attempt, then doubles from restartBase up to restartMax.
func backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := restartBase << min(failures-1, 10)
	return min(d, restartMax)
}

func (m *Machine) setStateLocked(s State) {
	if m.state == s {
		return
	}

	log.Debug("State change", "from", m.state, "to", s)
	m.state = s
	m.pending = append(m.pending, Event{Kind: EventStateChanged, State: s})

	if s != StateListening {
		m.stopDemoteLocked()
	}

	if s == StateIdle || s == StateListening {
		m.restartRecognitionLocked()
	}
}

func (m *Machine) setErrorLocked(msg string) {
	if m.errMsg == msg {
		return
	}
	m.errMsg = msg
	m.pending = append(m.pending, Event{Kind: EventErrorChanged, State: m.state, Error: msg})
}

func (m *Machine) appendLocked(msg types.ChatMessage) {
	stored := m.transcript.Append(msg)
	m.pending = append(m.pending, Event{Kind: EventMessageAppended, State: m.state, Message: stored})
}

// unlock releases mu and delivers the events queued while it was held.
func (m *Machine) unlock() {
	events := m.pending
	m.pending = nil

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	for _, ev := range events {
		for _, fn := range m.observers {
			fn(ev)
		}
	}
}
