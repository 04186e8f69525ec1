package backend

import (
	"context"
	"encoding/json"
	log "log/slog"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"jarvis/internal/types"
)

var openaiTools = []openai.ChatCompletionToolUnionParam{
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        ToolOpenWebsite,
		Description: openai.String(openWebsiteDescription),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": urlParamDescription},
			},
			"required": []string{"url"},
		},
	}),
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        ToolOpenLocalApp,
		Description: openai.String(openLocalAppDescription),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"appName": map[string]any{"type": "string", "description": appNameParamDescription},
			},
			"required": []string{"appName"},
		},
	}),
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint, including
// Gemini's compatibility layer and OpenRouter.
type OpenAI struct {
	client     openai.Client
	configured bool
	model      string
	interp     interpreter

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	c := &OpenAI{
		client:     openai.NewClient(reqOpts...),
		configured: opts.APIKey != "",
		model:      opts.Model,
		interp:     interpreter{apps: opts.Apps, persona: opts.Persona},
	}
	if c.model == "" {
		c.model = openai.ChatModelGPT5Nano
	}
	if !c.configured {
		log.Error("Failed to init assistant backend", "provider", ProviderOpenAI, "err", "API key not set")
	}

	return c
}

func (c *OpenAI) SendMessage(ctx context.Context, text string, image string) (types.Response, error) {
	if !c.configured {
		return types.Response{Text: c.interp.persona.ConnectionTrouble()}, nil
	}

	var user openai.ChatCompletionMessageParamUnion
	if image != "" {
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/jpeg;base64," + image,
			}),
			openai.TextContentPart(text),
		})
	} else {
		user = openai.UserMessage(text)
	}

	c.mu.Lock()
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(c.history)+2)
	msgs = append(msgs, openai.SystemMessage(c.interp.persona.SystemPrompt()))
	msgs = append(msgs, c.history...)
	c.mu.Unlock()
	msgs = append(msgs, user)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
		Tools:    openaiTools,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.Response{}, ctx.Err()
		}
		log.Error("Failed to send message to model", "model", c.model, "err", err)
		return types.Response{Text: c.interp.persona.ConnectionTrouble()}, nil
	}

	if len(resp.Choices) == 0 {
		log.Warn("No choices in response", "model", c.model)
		return types.Response{Text: c.interp.persona.EmptyReply()}, nil
	}

	msg := resp.Choices[0].Message

	var calls []FunctionCall
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			log.Warn("Undecodable function call args", "fn", tc.Function.Name, "err", err)
		}
		calls = append(calls, FunctionCall{Name: tc.Function.Name, Args: args})
	}

	out := c.interp.reply(calls, msg.Content, nil)

	c.mu.Lock()
	c.history = append(c.history, openai.UserMessage(text), openai.AssistantMessage(out.Text))
	c.mu.Unlock()

	return out, nil
}
