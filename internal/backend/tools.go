package backend

import (
	log "log/slog"
	"strings"

	"jarvis/internal/apps"
	"jarvis/internal/types"
)

const (
	ToolOpenWebsite  = "openWebsite"
	ToolOpenLocalApp = "openLocalApp"
)

const (
	openWebsiteDescription = `Opens a given URL in a new browser tab. Use this for requests like "open google.com" or "take me to YouTube".`
	urlParamDescription    = "The valid URL to open, including the protocol (e.g., https://www.google.com)."

	openLocalAppDescription = "Opens a locally installed application on the user's computer. Use this when the user asks to open a specific program like their code editor, Slack, or Spotify."
	appNameParamDescription = `The name or a keyword for the application to open. For example: "VS Code", "Slack", "Spotify", "code editor", "music".`
)

// FunctionCall is a provider-neutral function call returned by a model.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// interpreter turns model function calls into replies with actions.
type interpreter struct {
	apps    *apps.Registry
	persona Persona
}

// interpret handles the first function call. It reports false when the call is
// unknown or its arguments are malformed, in which case the caller falls back
// to the model's text.
func (in interpreter) interpret(call FunctionCall) (types.Response, bool) {
	switch call.Name {
	case ToolOpenWebsite:
		url, ok := call.Args["url"].(string)
		if !ok {
			log.Warn("Malformed function call args", "fn", call.Name, "args", call.Args)
			return types.Response{}, false
		}
		return types.Response{
			Text:   in.persona.OpeningWebsite(url),
			Action: &types.Action{Type: types.ActionOpenURL, URL: NormalizeURL(url)},
		}, true

	case ToolOpenLocalApp:
		name, ok := call.Args["appName"].(string)
		if !ok {
			log.Warn("Malformed function call args", "fn", call.Name, "args", call.Args)
			return types.Response{}, false
		}
		app, found := in.apps.Resolve(name)
		if !found {
			return types.Response{Text: in.persona.UnknownApp(name)}, true
		}
		return types.Response{
			Text:   in.persona.OpeningApp(app.Name),
			Action: &types.Action{Type: types.ActionOpenURL, URL: app.Scheme},
		}, true
	}

	log.Warn("Unknown function call", "fn", call.Name)
	return types.Response{}, false
}

// reply builds the final response from the model output: the first function
// call wins, otherwise the text, otherwise the empty-reply fallback.
func (in interpreter) reply(calls []FunctionCall, text string, sources []types.Source) types.Response {
	if len(calls) > 0 {
		if resp, ok := in.interpret(calls[0]); ok {
			return resp
		}
	}

	if strings.TrimSpace(text) == "" {
		return types.Response{Text: in.persona.EmptyReply()}
	}

	return types.Response{Text: text, Sources: sources}
}

// NormalizeURL prefixes https:// when raw carries no http(s) scheme.
func NormalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}
