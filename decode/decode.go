// Package decode opens audio files as beep streams and reads them back as
// mono PCM for offline analysis.
package decode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// BlockFrames is the number of frames ReadMono pulls per iteration.
const BlockFrames = 4096

// ErrUnsupported is returned for files whose extension has no decoder.
var ErrUnsupported = errors.New("decode: unsupported audio format")

// Decoder turns a readable path into a seekable PCM stream.
type Decoder interface {
	Decode(ctx context.Context, path string) (beep.StreamSeekCloser, beep.Format, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, path string) (beep.StreamSeekCloser, beep.Format, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, path string) (beep.StreamSeekCloser, beep.Format, error) {
	return f(ctx, path)
}

// FileDecoder decodes MP3, WAV, FLAC and Ogg Vorbis files from disk.
type FileDecoder struct{}

// Supported reports whether path has an extension FileDecoder understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav", ".wave", ".flac", ".ogg", ".oga":
		return true
	}
	return false
}

// Decode opens path and returns its stream. Closing the stream closes the file.
func (FileDecoder) Decode(ctx context.Context, path string) (beep.StreamSeekCloser, beep.Format, error) {
	if err := ctx.Err(); err != nil {
		return nil, beep.Format{}, err
	}
	return Open(path)
}

// Open decodes the file at path, picking the decoder by extension.
func Open(path string) (beep.StreamSeekCloser, beep.Format, error) {
	if !Supported(path) {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open: %w", err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav", ".wave":
		s, format, err = wav.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		s, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &fileStream{StreamSeekCloser: s, f: f}, format, nil
}

// fileStream ties the lifetime of the opened file to the decoder.
type fileStream struct {
	beep.StreamSeekCloser
	f *os.File
}

func (s *fileStream) Close() error {
	err := s.StreamSeekCloser.Close()
	if cerr := s.f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}

// Probe returns the duration and format of the file at path without
// decoding its audio.
func Probe(path string) (time.Duration, beep.Format, error) {
	s, format, err := Open(path)
	if err != nil {
		return 0, beep.Format{}, err
	}
	defer s.Close()
	return format.SampleRate.D(s.Len()), format, nil
}

// ReadMono pulls s to the end, mixing each frame down to mono and handing
// blocks of at most BlockFrames samples to fn. The block is reused between
// calls. It stops early when ctx is done or fn returns an error.
func ReadMono(ctx context.Context, s beep.Streamer, fn func(block []float32) error) error {
	stereo := make([][2]float64, BlockFrames)
	mono := make([]float32, BlockFrames)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := s.Stream(stereo)
		if n > 0 {
			if err := fn(Mix(mono, stereo[:n])); err != nil {
				return err
			}
		}
		if !ok {
			return s.Err()
		}
	}
}

// Mix mixes stereo frames into dst and returns the filled prefix.
// dst must be at least len(frames) long.
func Mix(dst []float32, frames [][2]float64) []float32 {
	for i := range frames {
		dst[i] = float32((frames[i][0] + frames[i][1]) / 2)
	}
	return dst[:len(frames)]
}

// EncodeWAV writes s to path as 16-bit WAV in the given format.
func EncodeWAV(path string, s beep.Streamer, format beep.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := wav.Encode(f, s, format); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	return f.Close()
}
