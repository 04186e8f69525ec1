package assistant

import (
	"slices"
	"sync"

	"jarvis/internal/types"
)

// Transcript is the append-only conversation log of a session.
type Transcript struct {
	mu   sync.RWMutex
	msgs []types.ChatMessage
}

func NewTranscript(initial ...types.ChatMessage) *Transcript {
	t := &Transcript{}
	for _, m := range initial {
		t.Append(m)
	}
	return t
}

// Append stores a copy of m and returns it.
func (t *Transcript) Append(m types.ChatMessage) types.ChatMessage {
	m.Sources = slices.Clone(m.Sources)

	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.mu.Unlock()

	return m
}

// Messages returns a snapshot in append order.
func (t *Transcript) Messages() []types.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.ChatMessage, len(t.msgs))
	for i, m := range t.msgs {
		m.Sources = slices.Clone(m.Sources)
		out[i] = m
	}
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
