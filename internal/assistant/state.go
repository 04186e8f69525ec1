package assistant

import (
	"fmt"

	"jarvis/internal/types"
)

type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	case StateError:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Available reports whether the machine accepts a new user action.
func (s State) Available() bool {
	return s == StateIdle || s == StateError
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventMessageAppended
	EventErrorChanged
)

// Event is delivered to observers after the change has been applied.
type Event struct {
	Kind    EventKind
	State   State
	Message types.ChatMessage
	Error   string
}
