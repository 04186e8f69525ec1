// Package types provides the conversation data model shared by the assistant,
// its backend clients and the event bus.
package types

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Source is a grounding reference attached to a model reply.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ChatMessage is one transcript entry. It is never modified after being appended.
type ChatMessage struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"`
}

// ActionType names a side effect requested alongside a reply.
type ActionType string

// ActionOpenURL asks the host to open a URL (web page or custom app scheme).
const ActionOpenURL ActionType = "open_url"

// Action is a structured side-effect instruction.
type Action struct {
	Type ActionType `json:"type"`
	URL  string     `json:"url"`
}

// Response is what a backend returns for one utterance.
type Response struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
	Action  *Action  `json:"action,omitempty"`
}
