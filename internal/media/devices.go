package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	log "log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Devices opens the local camera (v4l2), the X11 screen and the default
// microphone. Frames are pulled with ffmpeg on demand.
type Devices struct {
	FFmpeg  string // default "ffmpeg"
	Camera  string // e.g. /dev/video0, "" disables the camera
	Display string // e.g. :0
	Width   int
	Height  int
}

func (d Devices) ffmpeg() string {
	if d.FFmpeg == "" {
		return "ffmpeg"
	}
	return d.FFmpeg
}

// OpenUserMedia acquires microphone and camera together. Failure to reach
// either is reported as ErrPermission.
func (d Devices) OpenUserMedia(ctx context.Context) (*Stream, error) {
	mic, err := openMicrophone()
	if err != nil {
		return nil, fmt.Errorf("%w: microphone: %v", ErrPermission, err)
	}

	if d.Camera == "" {
		return NewStream(mic), nil
	}

	f, err := os.Open(d.Camera)
	if err != nil {
		mic.Stop()
		return nil, fmt.Errorf("%w: camera %s: %v", ErrPermission, d.Camera, err)
	}
	f.Close()

	cam := &cameraTrack{dev: d.Camera, ffmpeg: d.ffmpeg(), settings: Settings{Width: d.Width, Height: d.Height}}
	cam.init(KindVideo, "camera "+d.Camera)

	return NewStream(mic, cam), nil
}

// OpenDisplayMedia acquires the screen.
func (d Devices) OpenDisplayMedia(ctx context.Context) (*Stream, error) {
	display := d.Display
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return nil, errors.New("no X display")
	}

	scr := &screenTrack{display: display, ffmpeg: d.ffmpeg(), settings: Settings{Width: d.Width, Height: d.Height}}
	scr.init(KindVideo, "screen "+display)

	// Probe once so a denied or missing display fails here rather than on first capture.
	if _, err := scr.GrabFrame(ctx); err != nil {
		return nil, fmt.Errorf("screen capture: %w", err)
	}

	return NewStream(scr), nil
}

type micTrack struct {
	trackBase
}

func openMicrophone() (*micTrack, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	m := &micTrack{}
	m.init(KindAudio, dev.Name)
	return m, nil
}

func (m *micTrack) Stop() {
	if m.Live() {
		m.end()
		portaudio.Terminate()
	}
}

type cameraTrack struct {
	trackBase
	dev      string
	ffmpeg   string
	settings Settings
}

func (c *cameraTrack) Settings() Settings { return c.settings }
func (c *cameraTrack) Stop()              { c.end() }

func (c *cameraTrack) TakePhoto(ctx context.Context) ([]byte, error) {
	return runFFmpeg(ctx, c.ffmpeg,
		"-f", "v4l2", "-i", c.dev,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

func (c *cameraTrack) GrabFrame(ctx context.Context) (image.Image, error) {
	out, err := runFFmpeg(ctx, c.ffmpeg,
		"-f", "v4l2", "-i", c.dev,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(out))
}

type screenTrack struct {
	trackBase
	display  string
	ffmpeg   string
	settings Settings
}

func (s *screenTrack) Settings() Settings { return s.settings }
func (s *screenTrack) Stop()              { s.end() }

// GrabFrame captures the whole display. A lost display ends the track.
func (s *screenTrack) GrabFrame(ctx context.Context) (image.Image, error) {
	out, err := runFFmpeg(ctx, s.ffmpeg,
		"-f", "x11grab", "-i", s.display,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	if err != nil {
		if ctx.Err() == nil && strings.Contains(err.Error(), "Cannot open display") {
			log.Warn("Screen source went away", "display", s.display)
			s.end()
		}
		return nil, err
	}
	return png.Decode(bytes.NewReader(out))
}

func runFFmpeg(ctx context.Context, bin string, args ...string) ([]byte, error) {
	args = append([]string{"-hide_banner", "-loglevel", "error"}, args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
