package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/gen2brain/webp"
)

const (
	DefaultQuality = 80
	DefaultMethod  = 4

	// minQuality is the lowest quality the codec honours; it treats 0 as
	// "use the default".
	minQuality = 1

	// losslessEffort is handed to the codec as its quality parameter in
	// lossless mode, where libwebp reads quality as compression effort.
	losslessEffort = 75
)

// Encoder holds the WebP encoding parameters for a run.
type Encoder struct {
	Quality  int
	Lossless bool
	Method   int
}

func (e Encoder) options() webp.Options {
	opts := webp.Options{
		Quality:  e.Quality,
		Lossless: e.Lossless,
		Method:   e.Method,
	}
	if e.Lossless {
		opts.Quality = losslessEffort
	} else if opts.Quality < minQuality {
		opts.Quality = minQuality
	}
	return opts
}

// EncodeStill writes img to w as a single-frame WebP.
func (e Encoder) EncodeStill(w io.Writer, img image.Image) error {
	if err := webp.Encode(w, img, e.options()); err != nil {
		return fmt.Errorf("error encoding to WebP: %w", err)
	}
	return nil
}

// EncodeAnimated writes anim to w as an animated WebP, preserving frame order,
// per-frame delays and the loop count. Frames are encoded one by one and
// muxed into ANMF chunks.
func (e Encoder) EncodeAnimated(w io.Writer, anim *Animation) error {
	if anim == nil || len(anim.Frames) == 0 {
		return ErrNoFrames
	}

	m, err := newMuxer(anim.Frames[0].Bounds(), anim.LoopCount)
	if err != nil {
		return fmt.Errorf("error encoding animated WebP: %w", err)
	}

	opts := e.options()
	var buf bytes.Buffer
	for i, frame := range anim.Frames {
		buf.Reset()
		if err := webp.Encode(&buf, frame, opts); err != nil {
			return fmt.Errorf("error encoding frame %d: %w", i, err)
		}

		delay := 0
		if i < len(anim.Delays) {
			delay = anim.Delays[i]
		}
		if err := m.add(frame, buf.Bytes(), delay); err != nil {
			return fmt.Errorf("error adding frame %d: %w", i, err)
		}
	}

	if _, err := w.Write(m.bytes()); err != nil {
		return fmt.Errorf("error writing animated WebP: %w", err)
	}
	return nil
}
