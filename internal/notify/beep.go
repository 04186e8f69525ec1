// Package notify plays short audio cues.
package notify

import (
	"context"
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
)

type Player interface {
	Play(ctx context.Context, s beep.Streamer, format beep.Format) error
}

// Chime plays an mp3 cue, the activation sound.
type Chime struct {
	path   string
	player Player
}

func NewChime(path string, player Player) *Chime {
	return &Chime{path: path, player: player}
}

func (c *Chime) Play(ctx context.Context) error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open chime: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	return c.player.Play(ctx, streamer, format)
}
