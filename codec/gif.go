package codec

import (
	"image"
	"image/gif"

	"golang.org/x/image/draw"
)

// maxLoopCount is the largest value the WebP ANIM chunk can store.
const maxLoopCount = 0xFFFF

// compositeGIF renders every GIF frame onto a full canvas, applying each
// frame's disposal method before the next one is drawn.
func compositeGIF(g *gif.GIF) *Animation {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		for _, frame := range g.Image {
			bounds = bounds.Union(frame.Bounds())
		}
	}

	canvas := image.NewNRGBA(bounds)
	anim := &Animation{
		Frames:    make([]image.Image, 0, len(g.Image)),
		Delays:    make([]int, 0, len(g.Image)),
		LoopCount: gifLoopCount(g.LoopCount),
	}

	for i, frame := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.NRGBA
		if disposal == gif.DisposalPrevious {
			previous = cloneNRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		anim.Frames = append(anim.Frames, cloneNRGBA(canvas))

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i] * 10
		}
		anim.Delays = append(anim.Delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}

	return anim
}

// gifLoopCount maps image/gif loop semantics (0 forever, -1 once, n means
// n+1 plays) onto the WebP loop count (0 forever, n plays).
func gifLoopCount(n int) int {
	switch {
	case n == 0:
		return 0
	case n < 0:
		return 1
	case n >= maxLoopCount:
		return maxLoopCount
	default:
		return n + 1
	}
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
