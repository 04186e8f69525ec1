// Package speech provides the two speech channels of the assistant: continuous
// recognition of final utterances, and one-at-a-time synthesis.
package speech

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned by Speak when the utterance was cancelled by
	// the user. It is not a failure.
	ErrInterrupted = errors.New("speech interrupted")
	// ErrBusy is returned by Speak while another utterance is playing.
	ErrBusy = errors.New("synthesizer busy")
)

// Recognizer is a continuous recognition channel. Start arms it; it then emits
// final results until it ends, which it signals with an EventEnd. A new Start
// is only valid after EventEnd.
type Recognizer interface {
	Start(ctx context.Context) error
	Abort()
	Events() <-chan Event
}

// Synthesizer speaks one utterance at a time.
type Synthesizer interface {
	// Speak blocks until playback ends. It returns nil on completion,
	// ErrInterrupted after Cancel, or a *SynthesisError.
	Speak(ctx context.Context, text string) error
	Cancel()
}

type EventKind int

const (
	EventResult EventKind = iota
	EventSpeechStart
	EventNoMatch // speech was heard but yielded no text
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventSpeechStart:
		return "speech-start"
	case EventNoMatch:
		return "no-match"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

type Event struct {
	Kind EventKind
	Text string    // EventResult
	Code ErrorCode // EventError
	Err  error     // EventError, optional detail
}

type ErrorCode string

const (
	CodeNoSpeech          ErrorCode = "no-speech"
	CodeAborted           ErrorCode = "aborted"
	CodeAudioCapture      ErrorCode = "audio-capture"
	CodeNetwork           ErrorCode = "network"
	CodeNotAllowed        ErrorCode = "not-allowed"
	CodeServiceNotAllowed ErrorCode = "service-not-allowed"
	CodeLanguage          ErrorCode = "language-not-supported"
)

type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassTransient
	ClassPermission
)

func (c ErrorCode) Class() ErrorClass {
	switch c {
	case CodeNoSpeech, CodeAborted:
		return ClassTransient
	case CodeNotAllowed, CodeServiceNotAllowed:
		return ClassPermission
	}
	return ClassOther
}

type SynthesisCode string

const (
	SynthVoiceUnavailable SynthesisCode = "voice-unavailable"
	SynthNetwork          SynthesisCode = "network"
	SynthFailed           SynthesisCode = "synthesis-failed"
	SynthAudioBusy        SynthesisCode = "audio-busy"
	SynthUnknown          SynthesisCode = "unknown"
)

// SynthesisError is a genuine synthesis failure. User cancellation is never
// reported as a SynthesisError.
type SynthesisError struct {
	Code SynthesisCode
	Err  error
}

func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return "synthesis error: " + string(e.Code)
	}
	return fmt.Sprintf("synthesis error: %s: %v", e.Code, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// SynthesisCodeOf extracts the code from err, or SynthUnknown.
func SynthesisCodeOf(err error) SynthesisCode {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Code
	}
	return SynthUnknown
}
