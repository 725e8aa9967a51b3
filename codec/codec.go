// Package codec decodes source images into a still or animated variant and
// encodes them to WebP through the gen2brain/webp codec.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"
)

// defaultFrameDelay is used for animation frames that carry no duration.
const defaultFrameDelay = 100

var (
	ErrUnknownFormat = errors.New("unrecognized image data")
	ErrNotWebP       = errors.New("not a webp file")
	ErrNoFrames      = errors.New("animation has no frames")
)

// Kind tags which payload of an Image is populated.
type Kind int

const (
	KindStill Kind = iota
	KindAnimated
)

func (k Kind) String() string {
	switch k {
	case KindStill:
		return "still"
	case KindAnimated:
		return "animated"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Image is a decoded source. Still is set for KindStill, Animation for
// KindAnimated.
type Image struct {
	Kind      Kind
	Format    string
	Still     image.Image
	Animation *Animation
}

// Animation holds canvas-sized frames ready for encoding.
type Animation struct {
	Frames []image.Image
	// Delays are per-frame display times in milliseconds.
	Delays []int
	// LoopCount uses WebP semantics: 0 loops forever, n plays n times.
	LoopCount int
}

// FrameCount returns the number of frames the decoded image carries.
func (img *Image) FrameCount() int {
	if img.Kind == KindAnimated && img.Animation != nil {
		return len(img.Animation.Frames)
	}
	return 1
}

// Sniff returns the format name for the leading bytes of an image file, or
// an empty string when no known signature matches.
func Sniff(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return "gif"
	case bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		return "tiff"
	case len(head) >= 12 && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WEBP":
		return "webp"
	case len(head) >= 12 && string(head[4:8]) == "ftyp" &&
		(string(head[8:12]) == "avif" || string(head[8:12]) == "avis"):
		return "avif"
	case bytes.HasPrefix(head, []byte("BM")):
		return "bmp"
	}
	return ""
}

// Decode reads a complete image file and returns it as a still or animated
// variant depending on its content.
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading image: %w", err)
	}

	format := Sniff(data)
	switch format {
	case "gif":
		return decodeGIF(data)
	case "webp":
		return decodeWebP(data)
	case "":
		return nil, ErrUnknownFormat
	}

	var img image.Image
	src := bytes.NewReader(data)
	switch format {
	case "png":
		img, err = png.Decode(src)
	case "jpeg":
		img, err = jpeg.Decode(src)
	case "bmp":
		img, err = bmp.Decode(src)
	case "tiff":
		img, err = tiff.Decode(src)
	case "avif":
		img, err = avif.Decode(src)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", format, err)
	}

	return &Image{Kind: KindStill, Format: format, Still: img}, nil
}

func decodeGIF(data []byte) (*Image, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("error decoding gif: %w", ErrNoFrames)
	}

	anim := compositeGIF(g)
	if len(anim.Frames) == 1 {
		return &Image{Kind: KindStill, Format: "gif", Still: anim.Frames[0]}, nil
	}

	return &Image{Kind: KindAnimated, Format: "gif", Animation: anim}, nil
}

func decodeWebP(data []byte) (*Image, error) {
	info, err := Inspect(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error reading webp chunks: %w", err)
	}

	if !info.Animated {
		img, err := xwebp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("error decoding webp: %w", err)
		}
		return &Image{Kind: KindStill, Format: "webp", Still: img}, nil
	}

	all, err := webp.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding animated webp: %w", err)
	}
	if len(all.Image) == 0 {
		return nil, fmt.Errorf("error decoding animated webp: %w", ErrNoFrames)
	}
	if len(all.Image) == 1 {
		return &Image{Kind: KindStill, Format: "webp", Still: all.Image[0]}, nil
	}

	frames := make([]image.Image, 0, len(all.Image))
	for _, frame := range all.Image {
		frames = append(frames, frame)
	}
	delays := fillDelays(all.Delay, len(frames))

	return &Image{
		Kind:   KindAnimated,
		Format: "webp",
		Animation: &Animation{
			Frames:    frames,
			Delays:    delays,
			LoopCount: info.LoopCount,
		},
	}, nil
}

// fillDelays returns exactly n delays. Frames past the end of src repeat the
// last known delay, or defaultFrameDelay when src is empty.
func fillDelays(src []int, n int) []int {
	delays := make([]int, n)
	prev := defaultFrameDelay
	for i := range delays {
		if i < len(src) {
			prev = src[i]
		}
		delays[i] = prev
	}
	return delays
}
