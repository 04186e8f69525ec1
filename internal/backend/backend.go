// Package backend sends user utterances to a generative model and interprets
// its function calls into assistant actions.
//
// Clients never surface transport or model failures to the caller: they answer
// with a fallback text instead. The only errors returned are context errors.
package backend

import (
	"context"
	"fmt"
	"net/http"

	"jarvis/internal/apps"
	"jarvis/internal/types"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Client is the backend contract used by the assistant.
type Client interface {
	// SendMessage sends text and an optional base64 JPEG frame ("" for none).
	SendMessage(ctx context.Context, text string, image string) (types.Response, error)
}

// Options configures a backend client.
type Options struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Apps       *apps.Registry
	Persona    Persona
}

// New builds the client for opts.Provider.
func New(ctx context.Context, opts Options) (Client, error) {
	if opts.Apps == nil {
		opts.Apps = apps.Default()
	}

	switch opts.Provider {
	case ProviderGemini, "":
		return NewGemini(ctx, opts), nil
	case ProviderOpenAI:
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", opts.Provider)
	}
}
