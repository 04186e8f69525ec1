package audio

import (
	"context"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Player owns the output device. beep's speaker is process-global, so every
// sound in the daemon goes through one Player.
type Player struct {
	rate beep.SampleRate

	once    sync.Once
	initErr error
	mu      sync.Mutex
}

func NewPlayer(rate beep.SampleRate) *Player {
	if rate <= 0 {
		rate = 44100
	}
	return &Player{rate: rate}
}

func (p *Player) init() error {
	p.once.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
	})
	return p.initErr
}

// Play blocks until s is drained or ctx is done. On cancellation the speaker
// is cleared and ctx.Err() is returned.
func (p *Player) Play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	if err := p.init(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
