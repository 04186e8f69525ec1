// Package control is the command surface of the daemon. The same operations
// are reachable from jarvis-ctl over the unix socket and from the hub over the
// bus, with the orb and text input gating applied in one place.
package control

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	"jarvis/internal/apps"
	"jarvis/internal/assistant"
	"jarvis/internal/bus"
	"jarvis/internal/ipc"
	"jarvis/internal/speech"
	"jarvis/internal/types"
	"jarvis/pkg/audioconv"
	"jarvis/pkg/stt"
)

var (
	ErrLiveMode       = errors.New("disabled in live mode")
	ErrBusy           = errors.New("assistant is busy")
	ErrMissingArg     = errors.New("missing argument")
	ErrUnknownCommand = errors.New("unknown command")
	ErrNothingHeard   = errors.New("nothing recognized")
	ErrNoTranscriber  = errors.New("no transcriber configured")
)

// maxHearSamples bounds injected files to two minutes of audio.
const maxHearSamples = 2 * 60 * audioconv.TargetRate

type Assistant interface {
	Activate() bool
	StopSpeaking()
	SetLiveMode(on bool)
	LiveMode() bool
	SendText(text string)
	OnFinalTranscript(text string)
	State() assistant.State
	Error() string
	Transcript() []types.ChatMessage
}

type Screen interface {
	ToggleScreenShare(ctx context.Context) (bool, error)
	Sharing() bool
}

// Decoder turns an audio file into 16 kHz mono PCM.
type Decoder func(ctx context.Context, path string) ([]float32, error)

type Options struct {
	Assistant  Assistant
	Screen     Screen
	Apps       *apps.Registry
	STT        speech.Transcriber // optional, enables hear
	STTOptions stt.Options
	Decode     Decoder // defaults to audioconv.DecodeFile
}

type Controller struct {
	a       Assistant
	screen  Screen
	apps    *apps.Registry
	stt     speech.Transcriber
	sttOpts stt.Options
	decode  Decoder
}

func New(opts Options) *Controller {
	if opts.Apps == nil {
		opts.Apps = apps.Default()
	}
	if opts.Decode == nil {
		opts.Decode = func(ctx context.Context, path string) ([]float32, error) {
			return audioconv.DecodeFile(ctx, path, audioconv.Options{MaxSamples: maxHearSamples})
		}
	}

	return &Controller{
		a:       opts.Assistant,
		screen:  opts.Screen,
		apps:    opts.Apps,
		stt:     opts.STT,
		sttOpts: opts.STTOptions,
		decode:  opts.Decode,
	}
}

// Press is the orb: activate from IDLE or ERROR, stop from SPEAKING,
// otherwise nothing.
func (c *Controller) Press() error {
	if c.a.LiveMode() {
		return ErrLiveMode
	}

	switch c.a.State() {
	case assistant.StateSpeaking:
		c.a.StopSpeaking()
	case assistant.StateIdle, assistant.StateError:
		c.a.Activate()
	}
	return nil
}

// Listen activates without the stop behaviour of the orb.
func (c *Controller) Listen() error {
	if c.a.LiveMode() {
		return ErrLiveMode
	}
	if !c.a.Activate() {
		return ErrBusy
	}
	return nil
}

// Say submits typed text, accepted only outside live mode while IDLE or ERROR.
func (c *Controller) Say(text string) error {
	if c.a.LiveMode() {
		return ErrLiveMode
	}
	if !c.a.State().Available() {
		return ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		return ErrMissingArg
	}
	c.a.SendText(text)
	return nil
}

// Hear decodes and transcribes an audio file and hands the text to the
// machine exactly like a live recognition result.
func (c *Controller) Hear(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", ErrMissingArg
	}
	if c.stt == nil {
		return "", ErrNoTranscriber
	}

	pcm, err := c.decode(ctx, path)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	res, err := c.stt.TranscribePCM(ctx, pcm, c.sttOpts)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := stt.Clean(res.Text)
	if text == "" {
		return "", ErrNothingHeard
	}

	log.Info("Injected utterance", "path", path, "text", text)
	c.a.OnFinalTranscript(text)
	return text, nil
}

// SetLive accepts "on", "off", or "" to toggle.
func (c *Controller) SetLive(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "":
		on := !c.a.LiveMode()
		c.a.SetLiveMode(on)
		return on, nil
	case "on", "true", "1":
		c.a.SetLiveMode(true)
		return true, nil
	case "off", "false", "0":
		c.a.SetLiveMode(false)
		return false, nil
	}
	return c.a.LiveMode(), fmt.Errorf("live: bad value %q", arg)
}

func (c *Controller) status() ipc.Reply {
	r := ipc.Reply{
		OK:     true,
		State:  c.a.State().String(),
		Live:   c.a.LiveMode(),
		Banner: c.a.Error(),
	}
	if c.screen != nil {
		r.Sharing = c.screen.Sharing()
	}
	return r
}

// Handle serves one socket request.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Reply {
	var err error

	switch req.Cmd {
	case ipc.CmdOrb:
		err = c.Press()
	case ipc.CmdListen:
		err = c.Listen()
	case ipc.CmdSay:
		err = c.Say(req.Arg)
	case ipc.CmdStop:
		c.a.StopSpeaking()
	case ipc.CmdLive:
		_, err = c.SetLive(req.Arg)
	case ipc.CmdScreen:
		if c.screen == nil {
			err = errors.New("screen sharing unavailable")
			break
		}
		_, err = c.screen.ToggleScreenShare(ctx)
	case ipc.CmdHear:
		var text string
		if text, err = c.Hear(ctx, req.Arg); err == nil {
			r := c.status()
			r.Text = text
			return r
		}
	case ipc.CmdStatus:
	case ipc.CmdTranscript:
		r := c.status()
		r.Messages = c.a.Transcript()
		return r
	case ipc.CmdApps:
		return ipc.Reply{OK: true, Apps: c.apps.List()}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, req.Cmd)
	}

	if err != nil {
		log.Warn("Control command failed", "cmd", req.Cmd, "err", err)
		return ipc.Fail(err)
	}
	return c.status()
}

// HandleBus serves one hub command. Replies are OK or ERR lines carrying the
// command noun and, for errors, a reason token.
func (c *Controller) HandleBus(ctx context.Context, cmd bus.Command) (bus.Command, bool) {
	var (
		err  error
		args []string
	)

	switch cmd.Verb + ":" + cmd.Noun {
	case "PRESS:ORB":
		err = c.Press()
	case "START:LISTEN":
		err = c.Listen()
	case "STOP:SPEECH":
		c.a.StopSpeaking()
	case "SET:LIVE":
		if len(cmd.Args) != 1 {
			err = ErrMissingArg
			break
		}
		var on bool
		if on, err = c.SetLive(cmd.Args[0]); err == nil {
			args = []string{onOff(on)}
		}
	case "TOGGLE:SCREEN":
		if c.screen == nil {
			err = errors.New("screen sharing unavailable")
			break
		}
		var on bool
		if on, err = c.screen.ToggleScreenShare(ctx); err == nil {
			args = []string{onOff(on)}
		}
	case "GET:STATE":
		args = []string{c.a.State().String()}
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		log.Warn("Hub command failed", "cmd", cmd.String(), "err", err)
		return cmd.Reply(cmd.To, false, cmd.Noun, reasonToken(err)), true
	}
	return cmd.Reply(cmd.To, true, cmd.Noun, args...), true
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func reasonToken(err error) string {
	switch {
	case errors.Is(err, ErrLiveMode):
		return "LIVE_MODE"
	case errors.Is(err, ErrBusy):
		return "BUSY"
	case errors.Is(err, ErrMissingArg):
		return "MISSING_ARG"
	case errors.Is(err, ErrUnknownCommand):
		return "UNKNOWN"
	}
	return "FAILED"
}
