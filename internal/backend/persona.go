package backend

import "fmt"

// Persona renders the assistant's fixed phrases for a given user.
type Persona struct {
	UserName string
}

func (p Persona) name() string {
	if p.UserName == "" {
		return "sir"
	}
	return p.UserName
}

func (p Persona) OpeningWebsite(url string) string {
	return fmt.Sprintf("Of course, %s. Opening %s for you.", p.name(), url)
}

func (p Persona) OpeningApp(app string) string {
	return fmt.Sprintf("Certainly, %s. Opening %s.", p.name(), app)
}

func (p Persona) UnknownApp(query string) string {
	return fmt.Sprintf("My apologies, %s. I don't have a configured command to open %q. You can add it to the app list.", p.name(), query)
}

func (p Persona) EmptyReply() string {
	return fmt.Sprintf("My apologies, %s. I encountered an issue and couldn't get a response.", p.name())
}

func (p Persona) ConnectionTrouble() string {
	return fmt.Sprintf("My apologies, %s. I seem to be having some trouble connecting to my core processors.", p.name())
}

// SystemPrompt is sent as the system instruction to every provider.
func (p Persona) SystemPrompt() string {
	return fmt.Sprintf(`You are a sophisticated, intelligent, and professional AI assistant created by %s.
Your responses must be concise and to the point.
You have access to the user's camera feed or screen share. When an image is provided, use it as context to answer the user's question.
You can open websites and locally installed applications for the user when they ask.
Be conversational.`, p.name())
}
