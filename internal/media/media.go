// Package media acquires capture streams and grabs still frames from the
// active video source.
package media

import (
	"context"
	"errors"
	"image"
	"sync"
)

var ErrPermission = errors.New("media permission denied")

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

type Track interface {
	Kind() TrackKind
	Label() string
	// Live reports whether the track still produces data.
	Live() bool
	// Ended is closed once the track stops, by Stop or by its source going away.
	Ended() <-chan struct{}
	Stop()
}

type Settings struct {
	Width  int
	Height int
}

type VideoTrack interface {
	Track
	Settings() Settings
}

// PhotoCapturer is implemented by video tracks that can take a JPEG directly.
type PhotoCapturer interface {
	TakePhoto(ctx context.Context) ([]byte, error)
}

// FrameGrabber is implemented by video tracks that can hand out a raw frame.
type FrameGrabber interface {
	GrabFrame(ctx context.Context) (image.Image, error)
}

type Stream struct {
	tracks []Track
}

func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

func (s *Stream) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}

func (s *Stream) VideoTracks() []VideoTrack {
	var out []VideoTrack
	for _, t := range s.tracks {
		if v, ok := t.(VideoTrack); ok && t.Kind() == KindVideo {
			out = append(out, v)
		}
	}
	return out
}

// Stop stops every track of the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// trackBase carries the lifecycle shared by the device tracks.
type trackBase struct {
	kind  TrackKind
	label string

	once  sync.Once
	ended chan struct{}
}

func (t *trackBase) init(kind TrackKind, label string) {
	t.kind = kind
	t.label = label
	t.ended = make(chan struct{})
}

func (t *trackBase) Kind() TrackKind        { return t.kind }
func (t *trackBase) Label() string          { return t.label }
func (t *trackBase) Ended() <-chan struct{} { return t.ended }

func (t *trackBase) Live() bool {
	select {
	case <-t.ended:
		return false
	default:
		return true
	}
}

func (t *trackBase) end() {
	t.once.Do(func() { close(t.ended) })
}
