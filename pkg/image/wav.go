package image

import (
	"errors"
	"io"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat indicates a WAV file the player cannot play.
var ErrUnsupportedFormat = errors.New("only mono 8-bit wav samples are supported")

// LoadWAV reads the PCM frames of a mono 8-bit WAV file.
func LoadWAV(r io.ReadSeeker) ([]byte, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	if d.NumChans != 1 || d.BitDepth != 8 {
		return nil, ErrUnsupportedFormat
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	frames := make([]byte, len(buf.Data))
	for n, v := range buf.Data {
		frames[n] = byte(v)
	}
	return frames, nil
}
