package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	log "log/slog"

	"golang.org/x/image/draw"
)

const (
	fallbackWidth  = 640
	fallbackHeight = 480
	jpegQuality    = 85
)

// CaptureFrame returns the current frame of the stream's first video track as
// base64 JPEG, or "" when no frame can be taken. It never fails.
func CaptureFrame(ctx context.Context, s *Stream) string {
	if s == nil {
		return ""
	}

	videos := s.VideoTracks()
	if len(videos) == 0 {
		return ""
	}

	track := videos[0]
	if !track.Live() {
		log.Warn("Video track is not live, cannot capture frame", "track", track.Label())
		return ""
	}

	if pc, ok := track.(PhotoCapturer); ok {
		photo, err := pc.TakePhoto(ctx)
		if err == nil && len(photo) > 0 {
			return base64.StdEncoding.EncodeToString(photo)
		}
		log.Warn("Photo capture failed, falling back to frame render", "track", track.Label(), "err", err)
	}

	fg, ok := track.(FrameGrabber)
	if !ok {
		return ""
	}

	frame, err := renderFrame(ctx, fg, track.Settings())
	if err != nil {
		log.Error("Frame render failed", "track", track.Label(), "err", err)
		return ""
	}

	return base64.StdEncoding.EncodeToString(frame)
}

// renderFrame draws one grabbed frame onto a canvas sized by the track
// settings and encodes it as JPEG.
func renderFrame(ctx context.Context, fg FrameGrabber, st Settings) ([]byte, error) {
	src, err := fg.GrabFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("grab frame: %w", err)
	}

	w, h := st.Width, st.Height
	if w <= 0 {
		w = fallbackWidth
	}
	if h <= 0 {
		h = fallbackHeight
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}
