package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id   int
	from int
	to   int
}

// Mixer is the slice of pactl the Ducker needs.
type Mixer interface {
	SinkInputs(ctx context.Context) ([]sinkInput, error)
	SetVolume(ctx context.Context, id int, percent int) error
}

// Ducker fades other applications' sink inputs down while the assistant talks.
// Streams whose application.name is in self are left alone.
type Ducker struct {
	mixer    Mixer
	self     map[string]bool
	factor   float64
	floor    int
	duration time.Duration

	mu       sync.Mutex
	active   bool
	original map[int]int
}

type DuckerOptions struct {
	SelfNames []string
	Factor    float64       // target = current * Factor
	Floor     int           // never duck below this percentage
	Fade      time.Duration // fade length, 0 = instant
	Mixer     Mixer         // nil = pactl
}

func NewDucker(opts DuckerOptions) *Ducker {
	if opts.Mixer == nil {
		opts.Mixer = Pactl{}
	}
	if opts.Factor <= 0 || opts.Factor > 1 {
		opts.Factor = 0.3
	}

	d := &Ducker{
		mixer:    opts.Mixer,
		self:     make(map[string]bool, len(opts.SelfNames)),
		factor:   opts.Factor,
		floor:    clampVolume(opts.Floor),
		duration: opts.Fade,
		original: make(map[int]int),
	}
	for _, n := range opts.SelfNames {
		d.self[n] = true
	}

	return d
}

func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.mixer.SinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.original = make(map[int]int)

	var fades []fade
	for _, in := range inputs {
		if d.self[in.AppName] {
			continue
		}

		to := int(math.Round(float64(in.Volume) * d.factor))
		if to < d.floor {
			to = d.floor
		}
		d.original[in.ID] = in.Volume
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: clampVolume(to)})
	}

	// set before the fade so Restore also undoes a partial one
	d.active = len(fades) > 0

	return d.apply(ctx, fades)
}

func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.mixer.SinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var fades []fade
	for _, in := range inputs {
		orig, ok := d.original[in.ID]
		if !ok || d.self[in.AppName] {
			// appeared after Duck
			continue
		}
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false

	return nil
}

func (d *Ducker) apply(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	steps := 1
	if d.duration > 0 {
		steps = max(int(d.duration/(10*time.Millisecond)), 1)
	}
	stepDur := d.duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.mixer.SetVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}

		if i < steps {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}

// Pactl drives PulseAudio (or pipewire-pulse) through the pactl binary.
type Pactl struct{}

func (Pactl) SinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id int, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name = "); ok && in.AppName == "" {
				in.AppName = strings.Trim(rest, `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}

	return res
}
