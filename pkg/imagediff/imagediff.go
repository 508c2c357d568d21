// Package imagediff compares two screenshots pixel by pixel using a perceptual YIQ
// colour distance with anti-aliasing detection, and renders a visual diff image.
package imagediff

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// DefaultSensitivity treats per-pixel colour distances below ~10% as unchanged.
const DefaultSensitivity = 0.1

// Options tunes the comparison.
type Options struct {
	// Sensitivity in [0,1]; smaller values make the comparison stricter.
	Sensitivity float64
	// IncludeAA counts anti-aliased pixels as differences.
	IncludeAA bool
	// Alpha is the opacity of unchanged pixels in the diff image.
	Alpha float64
	// DiffColor marks differing pixels in the diff image.
	DiffColor color.NRGBA
	// AAColor marks detected anti-aliasing in the diff image.
	AAColor color.NRGBA
	// SkipDiffImage disables rendering of the diff image.
	SkipDiffImage bool
}

// DefaultOptions returns the options used by Compare.
func DefaultOptions() Options {
	return Options{
		Sensitivity: DefaultSensitivity,
		Alpha:       0.1,
		DiffColor:   color.NRGBA{R: 255, A: 255},
		AAColor:     color.NRGBA{R: 255, G: 255, A: 255},
	}
}

// Result is the outcome of comparing a reference image against a candidate.
type Result struct {
	// DiffPercent is the fraction of differing pixels in [0,1]. It is 1.0 when the
	// sizes differ.
	DiffPercent float64
	// DiffImage is a PNG of the same size as the inputs, nil on size mismatch.
	DiffImage []byte
	// SizeMismatch means the images could not be compared pixel by pixel.
	SizeMismatch bool
	DiffPixels   int
	Width        int
	Height       int
}

// Engine compares encoded images with fixed options. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	opts Options
}

// New returns an Engine using opts.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Compare runs the comparison with DefaultOptions.
func Compare(reference, candidate []byte) (*Result, error) {
	return New(DefaultOptions()).Compare(reference, candidate)
}

// Compare decodes both payloads and compares them.
func (e *Engine) Compare(reference, candidate []byte) (*Result, error) {
	ref, _, err := Decode(reference)
	if err != nil {
		return nil, &DecodeError{Which: "reference", Err: err}
	}

	cand, _, err := Decode(candidate)
	if err != nil {
		return nil, &DecodeError{Which: "candidate", Err: err}
	}

	return e.CompareImages(ref, cand)
}

// CompareImages compares two already decoded images.
func (e *Engine) CompareImages(reference, candidate *image.NRGBA) (*Result, error) {
	width, height := reference.Rect.Dx(), reference.Rect.Dy()
	if width != candidate.Rect.Dx() || height != candidate.Rect.Dy() {
		return &Result{DiffPercent: 1.0, SizeMismatch: true, Width: width, Height: height}, nil
	}

	result := &Result{Width: width, Height: height}
	if width == 0 || height == 0 {
		return result, nil
	}

	var out *image.NRGBA
	if !e.opts.SkipDiffImage {
		out = image.NewNRGBA(image.Rect(0, 0, width, height))
	}

	result.DiffPixels = e.match(reference.Pix, candidate.Pix, out, width, height)
	result.DiffPercent = float64(result.DiffPixels) / float64(width*height)

	if out != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, out); err != nil {
			return nil, err
		}
		result.DiffImage = buf.Bytes()
	}

	return result, nil
}

// match counts differing pixels and paints out when it is not nil.
func (e *Engine) match(img1, img2 []uint8, out *image.NRGBA, width, height int) int {
	var outPix []uint8
	if out != nil {
		outPix = out.Pix
	}

	if bytes.Equal(img1, img2) {
		if outPix != nil {
			for pos := 0; pos < len(img1); pos += 4 {
				drawGrayPixel(img1, pos, e.opts.Alpha, outPix)
			}
		}
		return 0
	}

	maxDelta := maxYIQDelta * e.opts.Sensitivity * e.opts.Sensitivity
	diff := 0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := (y*width + x) * 4
			delta := colorDelta(img1, img2, pos, pos, false)

			if delta < 0 {
				delta = -delta
			}

			switch {
			case delta <= maxDelta:
				if outPix != nil {
					drawGrayPixel(img1, pos, e.opts.Alpha, outPix)
				}
			case !e.opts.IncludeAA && (antialiased(img1, x, y, width, height, img2) ||
				antialiased(img2, x, y, width, height, img1)):
				if outPix != nil {
					drawPixel(outPix, pos, e.opts.AAColor.R, e.opts.AAColor.G, e.opts.AAColor.B)
				}
			default:
				if outPix != nil {
					drawPixel(outPix, pos, e.opts.DiffColor.R, e.opts.DiffColor.G, e.opts.DiffColor.B)
				}
				diff++
			}
		}
	}

	return diff
}
