package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/image/riff"
)

var (
	fccWEBP = riff.FourCC{'W', 'E', 'B', 'P'}
	fccVP8  = riff.FourCC{'V', 'P', '8', ' '}
	fccVP8L = riff.FourCC{'V', 'P', '8', 'L'}
	fccANIM = riff.FourCC{'A', 'N', 'I', 'M'}
	fccANMF = riff.FourCC{'A', 'N', 'M', 'F'}
)

// Info summarizes the chunk layout of a WebP file.
type Info struct {
	Animated  bool
	Frames    int
	LoopCount int
	// Delays holds the duration of each ANMF frame in milliseconds.
	Delays []int
}

// Inspect walks the top-level RIFF chunks of a WebP stream.
func Inspect(r io.Reader) (Info, error) {
	formType, chunks, err := riff.NewReader(r)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotWebP, err)
	}
	if formType != fccWEBP {
		return Info{}, ErrNotWebP
	}

	var info Info
	var bitstream bool
	for {
		id, size, data, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return info, fmt.Errorf("error reading chunk: %w", err)
		}

		switch id {
		case fccANIM:
			if size < 6 {
				return info, fmt.Errorf("short ANIM chunk (%d bytes)", size)
			}
			var head [6]byte
			if _, err := io.ReadFull(data, head[:]); err != nil {
				return info, fmt.Errorf("error reading ANIM chunk: %w", err)
			}
			info.Animated = true
			info.LoopCount = int(binary.LittleEndian.Uint16(head[4:6]))
		case fccANMF:
			if size < 16 {
				return info, fmt.Errorf("short ANMF chunk (%d bytes)", size)
			}
			var head [16]byte
			if _, err := io.ReadFull(data, head[:]); err != nil {
				return info, fmt.Errorf("error reading ANMF chunk: %w", err)
			}
			info.Frames++
			info.Delays = append(info.Delays, int(head[12])|int(head[13])<<8|int(head[14])<<16)
		case fccVP8, fccVP8L:
			bitstream = true
		}
	}

	if info.Frames == 0 && bitstream {
		info.Frames = 1
	}

	return info, nil
}
