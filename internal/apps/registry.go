// Package apps holds the table of locally installed applications the assistant
// can launch through their custom URL schemes.
//
// To add an application, find its URL scheme (for example "vscode://" or
// "spotify:") and append an entry to defaultApps.
package apps

import (
	"slices"
	"strings"
)

// App is a launchable local application.
type App struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Scheme   string   `json:"scheme"`
}

var defaultApps = []App{
	{Name: "Visual Studio Code", Keywords: []string{"vscode", "code", "editor", "visual studio"}, Scheme: "vscode://"},
	{Name: "Slack", Keywords: []string{"slack", "chat", "work"}, Scheme: "slack://"},
	{Name: "Spotify", Keywords: []string{"spotify", "music"}, Scheme: "spotify:"},
	{Name: "Notion", Keywords: []string{"notion", "notes", "docs"}, Scheme: "notion:"},
	{Name: "Figma", Keywords: []string{"figma", "design"}, Scheme: "figma://"},
	{Name: "Notepad", Keywords: []string{"notepad"}, Scheme: "notepad://"},
}

// Registry is a read-only lookup over a fixed set of apps.
type Registry struct {
	apps []App
}

// Default returns the registry built into the binary.
func Default() *Registry {
	return New(defaultApps)
}

// New builds a registry over a copy of list.
func New(list []App) *Registry {
	cp := make([]App, len(list))
	for i, a := range list {
		a.Keywords = slices.Clone(a.Keywords)
		cp[i] = a
	}
	return &Registry{apps: cp}
}

// Resolve finds the first app whose name contains query, or whose keyword is
// contained in query. Matching is case-insensitive.
func (r *Registry) Resolve(query string) (App, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return App{}, false
	}

	for _, a := range r.apps {
		if strings.Contains(strings.ToLower(a.Name), q) {
			return a, true
		}
		for _, kw := range a.Keywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				return a, true
			}
		}
	}

	return App{}, false
}

// List returns a copy of all registered apps in table order.
func (r *Registry) List() []App {
	return New(r.apps).apps
}
