package backend

import (
	"context"
	"encoding/base64"
	"errors"
	log "log/slog"
	"sync"

	"google.golang.org/genai"

	"jarvis/internal/types"
)

const DefaultGeminiModel = "gemini-2.5-flash"

var geminiTools = []*genai.Tool{{
	FunctionDeclarations: []*genai.FunctionDeclaration{
		{
			Name:        ToolOpenWebsite,
			Description: openWebsiteDescription,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"url": {Type: genai.TypeString, Description: urlParamDescription},
				},
				Required: []string{"url"},
			},
		},
		{
			Name:        ToolOpenLocalApp,
			Description: openLocalAppDescription,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"appName": {Type: genai.TypeString, Description: appNameParamDescription},
				},
				Required: []string{"appName"},
			},
		},
	},
}}

// Gemini talks to the Gemini API and keeps the chat history for the session.
type Gemini struct {
	client  *genai.Client
	initErr error
	model   string
	config  *genai.GenerateContentConfig
	interp  interpreter

	mu      sync.Mutex
	history []*genai.Content
}

// NewGemini builds the client. A construction failure (usually a missing API
// key) is remembered and reported as fallback text on every SendMessage.
func NewGemini(ctx context.Context, opts Options) *Gemini {
	g := &Gemini{
		model:  opts.Model,
		interp: interpreter{apps: opts.Apps, persona: opts.Persona},
		config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(opts.Persona.SystemPrompt())}},
			Tools:             geminiTools,
		},
	}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}

	if opts.APIKey == "" {
		g.initErr = errors.New("API key not set")
		log.Error("Failed to init assistant backend", "provider", ProviderGemini, "err", g.initErr)
		return g
	}

	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		g.initErr = err
		log.Error("Failed to init assistant backend", "provider", ProviderGemini, "err", err)
		return g
	}
	g.client = client

	return g
}

func (g *Gemini) SendMessage(ctx context.Context, text string, image string) (types.Response, error) {
	if g.client == nil {
		log.Error("Assistant backend not initialized", "err", g.initErr)
		return types.Response{Text: g.interp.persona.ConnectionTrouble()}, nil
	}

	parts := make([]*genai.Part, 0, 2)
	if image != "" {
		data, err := base64.StdEncoding.DecodeString(image)
		if err != nil {
			log.Warn("Dropping undecodable frame", "err", err)
		} else {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: data}})
		}
	}
	parts = append(parts, genai.NewPartFromText(text))

	g.mu.Lock()
	contents := make([]*genai.Content, 0, len(g.history)+1)
	contents = append(contents, g.history...)
	g.mu.Unlock()
	contents = append(contents, &genai.Content{Role: "user", Parts: parts})

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		if ctx.Err() != nil {
			return types.Response{}, ctx.Err()
		}
		log.Error("Failed to send message to Gemini", "err", err)
		return types.Response{Text: g.interp.persona.ConnectionTrouble()}, nil
	}

	var calls []FunctionCall
	for _, fc := range resp.FunctionCalls() {
		calls = append(calls, FunctionCall{Name: fc.Name, Args: fc.Args})
	}

	out := g.interp.reply(calls, resp.Text(), groundingSources(resp))
	g.remember(text, out.Text)

	return out, nil
}

// remember stores the exchange as plain text. Frames are not kept in history.
func (g *Gemini) remember(user, model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history,
		&genai.Content{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(user)}},
		&genai.Content{Role: "model", Parts: []*genai.Part{genai.NewPartFromText(model)}},
	)
}

func groundingSources(resp *genai.GenerateContentResponse) []types.Source {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}

	var out []types.Source
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		out = append(out, types.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return out
}
