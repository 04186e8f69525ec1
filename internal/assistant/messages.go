package assistant

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"jarvis/internal/speech"
)

// messages renders the fixed user-facing texts of the machine.
type messages struct {
	user string
	wake string
}

func (m messages) greeting() string {
	wake := m.wake
	if r, size := utf8.DecodeRuneInString(wake); r != utf8.RuneError {
		wake = string(unicode.ToUpper(r)) + wake[size:]
	}
	return fmt.Sprintf("Hello %s. I am online and ready. Say '%s' or type a command to begin.", m.user, wake)
}

func (m messages) requestFailed() string {
	return fmt.Sprintf("An error occurred while processing your request, %s.", m.user)
}

func (m messages) synthesis(code speech.SynthesisCode) string {
	switch code {
	case speech.SynthVoiceUnavailable:
		return fmt.Sprintf("My configured voice is unavailable, %s. I will use a default voice for now.", m.user)
	case speech.SynthNetwork:
		return fmt.Sprintf("A network error occurred while preparing my response, %s.", m.user)
	case speech.SynthFailed:
		return fmt.Sprintf("I was unable to synthesize a response, %s. Please try again.", m.user)
	}
	return fmt.Sprintf("My apologies, %s. I seem to have an issue with my vocal processors.", m.user)
}

const (
	msgMediaPermission       = "Permissions for camera and microphone are required. Please enable them and restart the assistant."
	msgRecognitionPermission = "Speech recognition permission was denied. Please allow microphone access and reload."
	msgRecognitionStart      = "Could not start voice recognition."
)
