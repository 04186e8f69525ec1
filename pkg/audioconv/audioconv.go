// Package audioconv decodes audio files into mono float32 PCM at 16 kHz, the
// input format of whisper.
package audioconv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const TargetRate = 16000

type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatOgg // vorbis, then opus
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	}
	return "unknown"
}

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	MaxSamples int // 0 = no limit
}

// DecodeFile picks a decoder by extension, falling back to sniffing the
// container magic.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := formatFromExt(path)
	if format == FormatUnknown {
		format, err = sniff(f)
		if err != nil {
			return nil, err
		}
	}

	return Decode(ctx, f, format, opt)
}

func Decode(ctx context.Context, r io.ReadSeeker, format Format, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		pcm []float32
		err error
	)

	switch format {
	case FormatWAV:
		pcm, err = decodeWAV(r)
	case FormatMP3:
		pcm, err = decodeMP3(r)
	case FormatOgg:
		pcm, err = decodeVorbis(r)
		if err != nil {
			if _, serr := r.Seek(0, io.SeekStart); serr != nil {
				return nil, fmt.Errorf("rewind ogg: %w", serr)
			}
			var operr error
			pcm, operr = decodeOpus(r)
			if operr != nil {
				return nil, fmt.Errorf("ogg is neither vorbis (%v) nor opus: %w", err, operr)
			}
			err = nil
		}
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm, nil
}

func formatFromExt(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga", ".opus":
		return FormatOgg
	}
	return FormatUnknown
}

func sniff(r io.ReadSeeker) (Format, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return FormatUnknown, err
	}

	switch {
	case string(magic) == "RIFF":
		return FormatWAV, nil
	case string(magic) == "OggS":
		return FormatOgg, nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3":
		return FormatMP3, nil
	case len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return FormatUnknown, ErrUnsupported
}
