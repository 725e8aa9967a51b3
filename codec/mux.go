package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/riff"
)

const (
	vp8xFlagAnimation = 0x02
	vp8xFlagAlpha     = 0x10

	// anmfNoBlend makes each frame replace the canvas instead of being
	// alpha-blended over the previous one.
	anmfNoBlend = 0x02

	maxUint24 = 1<<24 - 1
)

var (
	fccVP8X = riff.FourCC{'V', 'P', '8', 'X'}
	fccALPH = riff.FourCC{'A', 'L', 'P', 'H'}
)

// frameData is the image payload of a single-frame WebP file.
type frameData struct {
	alpha     []byte
	bitstream []byte
	id        riff.FourCC
}

// extractFrame pulls the ALPH and VP8/VP8L chunks out of a still WebP.
func extractFrame(data []byte) (frameData, error) {
	formType, chunks, err := riff.NewReader(bytes.NewReader(data))
	if err != nil {
		return frameData{}, fmt.Errorf("%w: %v", ErrNotWebP, err)
	}
	if formType != fccWEBP {
		return frameData{}, ErrNotWebP
	}

	var fd frameData
	for {
		id, _, body, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return frameData{}, fmt.Errorf("error reading chunk: %w", err)
		}

		switch id {
		case fccALPH:
			if fd.alpha, err = io.ReadAll(body); err != nil {
				return frameData{}, fmt.Errorf("error reading ALPH chunk: %w", err)
			}
		case fccVP8, fccVP8L:
			if fd.bitstream, err = io.ReadAll(body); err != nil {
				return frameData{}, fmt.Errorf("error reading bitstream chunk: %w", err)
			}
			fd.id = id
		}
	}

	if fd.bitstream == nil {
		return frameData{}, fmt.Errorf("%w: no VP8 or VP8L chunk", ErrNotWebP)
	}
	return fd, nil
}

// muxer assembles an animated WebP from individually encoded frames. Every
// frame covers the whole canvas.
type muxer struct {
	canvas image.Rectangle
	loop   int
	alpha  bool
	frames []byte
}

func newMuxer(canvas image.Rectangle, loop int) (*muxer, error) {
	if loop < 0 || loop > maxLoopCount {
		return nil, fmt.Errorf("loop count %d out of range 0-%d", loop, maxLoopCount)
	}
	if canvas.Empty() || canvas.Dx() > maxUint24+1 || canvas.Dy() > maxUint24+1 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", canvas.Dx(), canvas.Dy())
	}
	return &muxer{canvas: canvas, loop: loop}, nil
}

// add appends img, already encoded as the still WebP data, shown for delay
// milliseconds.
func (m *muxer) add(img image.Image, data []byte, delay int) error {
	if img.Bounds().Size() != m.canvas.Size() {
		return fmt.Errorf("frame is %v, canvas is %v", img.Bounds().Size(), m.canvas.Size())
	}

	fd, err := extractFrame(data)
	if err != nil {
		return err
	}

	if o, ok := img.(interface{ Opaque() bool }); !ok || !o.Opaque() {
		m.alpha = true
	}

	delay = min(max(delay, 0), maxUint24)

	header := make([]byte, 16)
	putUint24(header[6:], uint32(m.canvas.Dx()-1))
	putUint24(header[9:], uint32(m.canvas.Dy()-1))
	putUint24(header[12:], uint32(delay))
	header[15] = anmfNoBlend

	payload := header
	if fd.alpha != nil {
		payload = appendChunk(payload, fccALPH, fd.alpha)
	}
	payload = appendChunk(payload, fd.id, fd.bitstream)

	m.frames = appendChunk(m.frames, fccANMF, payload)
	return nil
}

// bytes returns the complete RIFF file.
func (m *muxer) bytes() []byte {
	vp8x := make([]byte, 10)
	vp8x[0] = vp8xFlagAnimation
	if m.alpha {
		vp8x[0] |= vp8xFlagAlpha
	}
	putUint24(vp8x[4:], uint32(m.canvas.Dx()-1))
	putUint24(vp8x[7:], uint32(m.canvas.Dy()-1))

	anim := make([]byte, 6)
	binary.LittleEndian.PutUint16(anim[4:], uint16(m.loop))

	body := append([]byte(nil), fccWEBP[:]...)
	body = appendChunk(body, fccVP8X, vp8x)
	body = appendChunk(body, fccANIM, anim)
	body = append(body, m.frames...)

	out := make([]byte, 8, 8+len(body))
	copy(out, "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(len(body)))
	return append(out, body...)
}

func appendChunk(dst []byte, id riff.FourCC, payload []byte) []byte {
	dst = append(dst, id[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	if len(payload)%2 == 1 {
		dst = append(dst, 0)
	}
	return dst
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
