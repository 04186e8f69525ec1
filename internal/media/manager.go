package media

import (
	"context"
	log "log/slog"
	"sync"
)

// Source opens capture streams.
type Source interface {
	OpenUserMedia(ctx context.Context) (*Stream, error)
	OpenDisplayMedia(ctx context.Context) (*Stream, error)
}

// Manager owns the session's streams. The camera stream is acquired once at
// start; a screen stream, while shared, replaces it as the frame source.
type Manager struct {
	src Source

	mu     sync.Mutex
	camera *Stream
	screen *Stream
}

func NewManager(src Source) *Manager {
	return &Manager{src: src}
}

func (m *Manager) Open(ctx context.Context) error {
	s, err := m.src.OpenUserMedia(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.camera = s
	m.mu.Unlock()

	return nil
}

// ToggleScreenShare starts sharing the screen or stops it. It reports whether
// sharing is on afterwards.
func (m *Manager) ToggleScreenShare(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.screen != nil {
		m.stopScreenLocked()
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	s, err := m.src.OpenDisplayMedia(ctx)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	if m.screen != nil {
		// a concurrent toggle opened the display first
		m.mu.Unlock()
		s.Stop()
		return true, nil
	}
	m.screen = s
	m.mu.Unlock()

	for _, t := range s.VideoTracks() {
		go m.watch(s, t)
	}

	log.Info("Screen sharing started")
	return true, nil
}

// watch reverts to the camera once the screen track ends on its own.
func (m *Manager) watch(s *Stream, t Track) {
	<-t.Ended()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen == s {
		m.stopScreenLocked()
	}
}

func (m *Manager) stopScreenLocked() {
	m.screen.Stop()
	m.screen = nil
	log.Info("Screen sharing stopped, reverted to camera")
}

func (m *Manager) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

// Active is the stream frames are taken from.
func (m *Manager) Active() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen != nil {
		return m.screen
	}
	return m.camera
}

func (m *Manager) CaptureFrame(ctx context.Context) string {
	return CaptureFrame(ctx, m.Active())
}

// Close stops all tracks.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen != nil {
		m.screen.Stop()
		m.screen = nil
	}
	if m.camera != nil {
		m.camera.Stop()
		m.camera = nil
	}
}
