package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"
)

type fakeVideo struct {
	trackBase
	settings Settings
	photo    []byte
	photoErr error
	frame    image.Image
	grabErr  error
	grabs    int
}

func newFakeVideo(label string) *fakeVideo {
	v := &fakeVideo{}
	v.init(KindVideo, label)
	return v
}

func (v *fakeVideo) Settings() Settings { return v.settings }
func (v *fakeVideo) Stop()              { v.end() }

func (v *fakeVideo) GrabFrame(context.Context) (image.Image, error) {
	v.grabs++
	return v.frame, v.grabErr
}

// photoVideo adds direct photo capture on top of fakeVideo.
type photoVideo struct {
	*fakeVideo
}

func (p photoVideo) TakePhoto(context.Context) ([]byte, error) {
	return p.photo, p.photoErr
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func decodeB64JPEG(t *testing.T, s string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestCaptureFrameNoStream(t *testing.T) {
	if got := CaptureFrame(context.Background(), nil); got != "" {
		t.Errorf("nil stream = %q", got)
	}
	if got := CaptureFrame(context.Background(), NewStream()); got != "" {
		t.Errorf("empty stream = %q", got)
	}
}

func TestCaptureFrameNotLive(t *testing.T) {
	v := newFakeVideo("cam")
	v.frame = solid(4, 4)
	v.Stop()

	if got := CaptureFrame(context.Background(), NewStream(v)); got != "" {
		t.Errorf("ended track = %q", got)
	}
	if v.grabs != 0 {
		t.Errorf("grabbed %d frames from an ended track", v.grabs)
	}
}

func TestCaptureFramePhoto(t *testing.T) {
	v := newFakeVideo("cam")
	v.photo = []byte{0xFF, 0xD8, 0xFF}

	got := CaptureFrame(context.Background(), NewStream(photoVideo{v}))
	if got != base64.StdEncoding.EncodeToString(v.photo) {
		t.Errorf("got %q", got)
	}
	if v.grabs != 0 {
		t.Error("fallback used although photo succeeded")
	}
}

func TestCaptureFrameFallback(t *testing.T) {
	v := newFakeVideo("cam")
	v.photoErr = errors.New("not supported")
	v.frame = solid(1920, 1080)
	v.settings = Settings{Width: 320, Height: 240}

	img := decodeB64JPEG(t, CaptureFrame(context.Background(), NewStream(photoVideo{v})))
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("bounds = %v, want 320x240", b)
	}
}

func TestCaptureFrameFallbackDefaultSize(t *testing.T) {
	v := newFakeVideo("screen")
	v.frame = solid(100, 50)

	img := decodeB64JPEG(t, CaptureFrame(context.Background(), NewStream(v)))
	if b := img.Bounds(); b.Dx() != fallbackWidth || b.Dy() != fallbackHeight {
		t.Errorf("bounds = %v", b)
	}
}

func TestCaptureFrameBothFail(t *testing.T) {
	v := newFakeVideo("cam")
	v.photoErr = errors.New("busy")
	v.grabErr = errors.New("busy")

	if got := CaptureFrame(context.Background(), NewStream(photoVideo{v})); got != "" {
		t.Errorf("got %q", got)
	}
}

type fakeSource struct {
	camera    *fakeVideo
	userErr   error
	screenErr error
	gate      chan struct{}

	mu      sync.Mutex
	entered int
	screen  *fakeVideo
	screens []*fakeVideo
}

func (s *fakeSource) waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entered
}

func (s *fakeSource) OpenUserMedia(context.Context) (*Stream, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return NewStream(s.camera), nil
}

func (s *fakeSource) OpenDisplayMedia(ctx context.Context) (*Stream, error) {
	if s.screenErr != nil {
		return nil, s.screenErr
	}
	if s.gate != nil {
		s.mu.Lock()
		s.entered++
		s.mu.Unlock()
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	v := newFakeVideo("screen")
	s.mu.Lock()
	s.screen = v
	s.screens = append(s.screens, v)
	s.mu.Unlock()
	return NewStream(v), nil
}

func TestManagerScreenShare(t *testing.T) {
	src := &fakeSource{camera: newFakeVideo("cam")}
	m := NewManager(src)

	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	on, err := m.ToggleScreenShare(context.Background())
	if err != nil || !on {
		t.Fatalf("toggle on = %v, %v", on, err)
	}
	if got := m.Active().VideoTracks()[0]; got.Label() != "screen" {
		t.Errorf("active = %s, want screen", got.Label())
	}

	on, err = m.ToggleScreenShare(context.Background())
	if err != nil || on {
		t.Fatalf("toggle off = %v, %v", on, err)
	}
	if src.screen.Live() {
		t.Error("screen track still live after stop")
	}
	if got := m.Active().VideoTracks()[0]; got.Label() != "cam" {
		t.Errorf("active = %s, want cam", got.Label())
	}
}

func TestManagerScreenEnded(t *testing.T) {
	src := &fakeSource{camera: newFakeVideo("cam")}
	m := NewManager(src)
	_ = m.Open(context.Background())

	if _, err := m.ToggleScreenShare(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.screen.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for m.Sharing() {
		if time.Now().After(deadline) {
			t.Fatal("did not revert to camera")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerOpenError(t *testing.T) {
	m := NewManager(&fakeSource{userErr: ErrPermission})
	if err := m.Open(context.Background()); !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v", err)
	}
	if got := m.CaptureFrame(context.Background()); got != "" {
		t.Errorf("frame without stream = %q", got)
	}
}

func TestManagerClose(t *testing.T) {
	src := &fakeSource{camera: newFakeVideo("cam")}
	m := NewManager(src)
	_ = m.Open(context.Background())
	_, _ = m.ToggleScreenShare(context.Background())

	m.Close()

	if src.camera.Live() || src.screen.Live() {
		t.Error("tracks still live after Close")
	}
	if m.Active() != nil {
		t.Error("active stream after Close")
	}
}

func TestManagerConcurrentToggle(t *testing.T) {
	src := &fakeSource{camera: newFakeVideo("cam"), gate: make(chan struct{})}
	m := NewManager(src)
	_ = m.Open(context.Background())

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			on, err := m.ToggleScreenShare(context.Background())
			if err != nil {
				t.Errorf("toggle %d: %v", i, err)
			}
			results[i] = on
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.waiting() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("toggles did not reach the display")
		}
		time.Sleep(time.Millisecond)
	}
	close(src.gate)
	wg.Wait()

	if !results[0] || !results[1] {
		t.Errorf("results = %v, want both on", results)
	}

	src.mu.Lock()
	screens := append([]*fakeVideo(nil), src.screens...)
	src.mu.Unlock()

	if len(screens) != 2 {
		t.Fatalf("opened %d screen streams, want 2", len(screens))
	}
	live := 0
	for _, v := range screens {
		if v.Live() {
			live++
		}
	}
	if live != 1 {
		t.Errorf("%d screen tracks live, want 1", live)
	}

	on, err := m.ToggleScreenShare(context.Background())
	if err != nil || on {
		t.Fatalf("toggle off = %v, %v", on, err)
	}
	for i, v := range screens {
		if v.Live() {
			t.Errorf("screen %d still live after stop", i)
		}
	}
}
