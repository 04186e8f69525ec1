package control

import (
	"context"
	"errors"
	"testing"

	"jarvis/internal/assistant"
	"jarvis/internal/bus"
	"jarvis/internal/ipc"
	"jarvis/internal/types"
	"jarvis/pkg/stt"
)

type fakeAssistant struct {
	state     assistant.State
	live      bool
	banner    string
	activated int
	stopped   int
	sent      []string
	heard     []string
}

func (a *fakeAssistant) Activate() bool {
	if !a.state.Available() {
		return false
	}
	a.activated++
	a.state = assistant.StateListening
	return true
}

func (a *fakeAssistant) StopSpeaking()                 { a.stopped++ }
func (a *fakeAssistant) SetLiveMode(on bool)           { a.live = on }
func (a *fakeAssistant) LiveMode() bool                { return a.live }
func (a *fakeAssistant) SendText(text string)          { a.sent = append(a.sent, text) }
func (a *fakeAssistant) OnFinalTranscript(text string) { a.heard = append(a.heard, text) }
func (a *fakeAssistant) State() assistant.State        { return a.state }
func (a *fakeAssistant) Error() string                 { return a.banner }

func (a *fakeAssistant) Transcript() []types.ChatMessage {
	return []types.ChatMessage{{Role: types.RoleModel, Content: "Hello"}}
}

type fakeScreen struct {
	sharing bool
	err     error
}

func (s *fakeScreen) ToggleScreenShare(context.Context) (bool, error) {
	if s.err != nil {
		return s.sharing, s.err
	}
	s.sharing = !s.sharing
	return s.sharing, nil
}

func (s *fakeScreen) Sharing() bool { return s.sharing }

type fakeSTT struct {
	text string
	err  error
	got  int
}

func (f *fakeSTT) TranscribePCM(_ context.Context, pcm []float32, _ stt.Options) (stt.Result, error) {
	f.got = len(pcm)
	return stt.Result{Text: f.text}, f.err
}

func newController(a *fakeAssistant) (*Controller, *fakeScreen, *fakeSTT) {
	screen := &fakeScreen{}
	tr := &fakeSTT{text: " Jarvis, open Spotify [MUSIC]"}
	c := New(Options{
		Assistant: a,
		Screen:    screen,
		STT:       tr,
		Decode: func(_ context.Context, path string) ([]float32, error) {
			if path == "missing.wav" {
				return nil, errors.New("no such file")
			}
			return make([]float32, 1600), nil
		},
	})
	return c, screen, tr
}

func TestPress(t *testing.T) {
	tests := []struct {
		name          string
		state         assistant.State
		live          bool
		wantErr       error
		wantActivated int
		wantStopped   int
	}{
		{"idle activates", assistant.StateIdle, false, nil, 1, 0},
		{"error activates", assistant.StateError, false, nil, 1, 0},
		{"speaking stops", assistant.StateSpeaking, false, nil, 0, 1},
		{"thinking ignored", assistant.StateThinking, false, nil, 0, 0},
		{"listening ignored", assistant.StateListening, false, nil, 0, 0},
		{"live mode disabled", assistant.StateIdle, true, ErrLiveMode, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAssistant{state: tt.state, live: tt.live}
			c, _, _ := newController(a)

			if err := c.Press(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Press() = %v, want %v", err, tt.wantErr)
			}
			if a.activated != tt.wantActivated || a.stopped != tt.wantStopped {
				t.Errorf("activated = %d, stopped = %d", a.activated, a.stopped)
			}
		})
	}
}

func TestSayGating(t *testing.T) {
	tests := []struct {
		name    string
		state   assistant.State
		live    bool
		text    string
		wantErr error
	}{
		{"idle", assistant.StateIdle, false, "hello", nil},
		{"error", assistant.StateError, false, "hello", nil},
		{"thinking", assistant.StateThinking, false, "hello", ErrBusy},
		{"speaking", assistant.StateSpeaking, false, "hello", ErrBusy},
		{"live", assistant.StateIdle, true, "hello", ErrLiveMode},
		{"blank", assistant.StateIdle, false, "  ", ErrMissingArg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAssistant{state: tt.state, live: tt.live}
			c, _, _ := newController(a)

			err := c.Say(tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Say() = %v, want %v", err, tt.wantErr)
			}
			if sent := len(a.sent); (err == nil) != (sent == 1) {
				t.Errorf("sent = %v", a.sent)
			}
		})
	}
}

func TestListenRefusedWhileBusy(t *testing.T) {
	a := &fakeAssistant{state: assistant.StateThinking}
	c, _, _ := newController(a)

	if err := c.Listen(); !errors.Is(err, ErrBusy) {
		t.Errorf("Listen() = %v", err)
	}
}

func TestSetLive(t *testing.T) {
	a := &fakeAssistant{}
	c, _, _ := newController(a)

	if on, err := c.SetLive(""); err != nil || !on || !a.live {
		t.Errorf("toggle = %v, %v", on, err)
	}
	if on, err := c.SetLive("OFF"); err != nil || on || a.live {
		t.Errorf("off = %v, %v", on, err)
	}
	if _, err := c.SetLive("maybe"); err == nil {
		t.Error("expected error for bad value")
	}
}

func TestHear(t *testing.T) {
	a := &fakeAssistant{}
	c, _, tr := newController(a)

	text, err := c.Hear(context.Background(), "cmd.wav")
	if err != nil {
		t.Fatal(err)
	}
	if text != "Jarvis, open Spotify" {
		t.Errorf("text = %q", text)
	}
	if tr.got != 1600 {
		t.Errorf("transcriber got %d samples", tr.got)
	}
	if len(a.heard) != 1 || a.heard[0] != "Jarvis, open Spotify" {
		t.Errorf("heard = %v", a.heard)
	}
}

func TestHearErrors(t *testing.T) {
	a := &fakeAssistant{}
	c, _, tr := newController(a)

	if _, err := c.Hear(context.Background(), ""); !errors.Is(err, ErrMissingArg) {
		t.Errorf("empty path: %v", err)
	}
	if _, err := c.Hear(context.Background(), "missing.wav"); err == nil {
		t.Error("expected decode error")
	}

	tr.text = "[BLANK_AUDIO]"
	if _, err := c.Hear(context.Background(), "quiet.wav"); !errors.Is(err, ErrNothingHeard) {
		t.Errorf("blank: %v", err)
	}

	if len(a.heard) != 0 {
		t.Errorf("heard = %v", a.heard)
	}

	noSTT := New(Options{Assistant: a})
	if _, err := noSTT.Hear(context.Background(), "cmd.wav"); !errors.Is(err, ErrNoTranscriber) {
		t.Errorf("no transcriber: %v", err)
	}
}

func TestHandle(t *testing.T) {
	a := &fakeAssistant{banner: "Could not start voice recognition."}
	c, screen, _ := newController(a)
	ctx := context.Background()

	r := c.Handle(ctx, ipc.Request{Cmd: ipc.CmdStatus})
	if !r.OK || r.State != "IDLE" || r.Banner != a.banner {
		t.Errorf("status = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: ipc.CmdScreen})
	if !r.OK || !r.Sharing || !screen.sharing {
		t.Errorf("screen = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: ipc.CmdTranscript})
	if len(r.Messages) != 1 {
		t.Errorf("transcript = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: ipc.CmdApps})
	if len(r.Apps) == 0 {
		t.Errorf("apps = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: ipc.CmdHear, Arg: "cmd.wav"})
	if !r.OK || r.Text != "Jarvis, open Spotify" {
		t.Errorf("hear = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: ipc.CmdLive, Arg: "on"})
	if !r.OK || !r.Live {
		t.Errorf("live = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: ipc.CmdOrb})
	if r.OK || r.Error == "" {
		t.Errorf("orb in live mode = %+v", r)
	}

	r = c.Handle(ctx, ipc.Request{Cmd: "bogus"})
	if r.OK {
		t.Errorf("bogus = %+v", r)
	}
}

func TestHandleBus(t *testing.T) {
	tests := []struct {
		line  string
		setup func(*fakeAssistant, *fakeScreen)
		want  string
	}{
		{"jarvis:GET:STATE:ui", nil, "ui:OK:STATE:IDLE:jarvis"},
		{"jarvis:PRESS:ORB:ui", nil, "ui:OK:ORB:jarvis"},
		{"jarvis:PRESS:ORB:ui", func(a *fakeAssistant, _ *fakeScreen) { a.live = true }, "ui:ERR:ORB:LIVE_MODE:jarvis"},
		{"jarvis:SET:LIVE:on:ui", nil, "ui:OK:LIVE:ON:jarvis"},
		{"jarvis:SET:LIVE:ui", nil, "ui:ERR:LIVE:MISSING_ARG:jarvis"},
		{"jarvis:TOGGLE:SCREEN:ui", nil, "ui:OK:SCREEN:ON:jarvis"},
		{"jarvis:TOGGLE:SCREEN:ui", func(_ *fakeAssistant, s *fakeScreen) { s.err = errors.New("denied") }, "ui:ERR:SCREEN:FAILED:jarvis"},
		{"jarvis:STOP:SPEECH:ui", nil, "ui:OK:SPEECH:jarvis"},
		{"jarvis:EAT:CAKE:ui", nil, "ui:ERR:CAKE:UNKNOWN:jarvis"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			a := &fakeAssistant{}
			c, screen, _ := newController(a)
			if tt.setup != nil {
				tt.setup(a, screen)
			}

			cmd, err := bus.ParseCommand(tt.line)
			if err != nil {
				t.Fatal(err)
			}

			reply, ok := c.HandleBus(context.Background(), cmd)
			if !ok {
				t.Fatal("no reply")
			}
			if got := reply.String(); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}
