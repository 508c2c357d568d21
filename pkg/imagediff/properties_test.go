package imagediff

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// noiseImage fills a width x height image with pseudo random opaque pixels.
func noiseImage(width, height int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func TestComparisonProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	engine := New(DefaultOptions())
	dims := gen.IntRange(1, 24)

	properties.Property("an image compared with itself has no difference", prop.ForAll(
		func(width, height int, seed int64) bool {
			img := noiseImage(width, height, seed)
			result, err := engine.CompareImages(img, img)
			return err == nil && result.DiffPercent == 0 && !result.SizeMismatch && result.DiffImage != nil
		},
		dims, dims, gen.Int64(),
	))

	properties.Property("diff percent stays within [0,1] and is deterministic", prop.ForAll(
		func(width, height int, seedA, seedB int64) bool {
			a := noiseImage(width, height, seedA)
			b := noiseImage(width, height, seedB)

			first, err := engine.CompareImages(a, b)
			if err != nil {
				return false
			}
			second, err := engine.CompareImages(a, b)
			if err != nil {
				return false
			}

			return first.DiffPercent >= 0 && first.DiffPercent <= 1 &&
				first.DiffPixels == second.DiffPixels &&
				string(first.DiffImage) == string(second.DiffImage)
		},
		dims, dims, gen.Int64(), gen.Int64(),
	))

	properties.Property("different dimensions always report a size mismatch", prop.ForAll(
		func(width, height, extra int, seed int64) bool {
			a := noiseImage(width, height, seed)
			b := noiseImage(width+extra, height, seed)

			result, err := engine.CompareImages(a, b)
			return err == nil && result.SizeMismatch && result.DiffPercent == 1.0 && result.DiffImage == nil
		},
		dims, dims, gen.IntRange(1, 8), gen.Int64(),
	))

	properties.Property("counting anti-aliasing never lowers the diff count", prop.ForAll(
		func(width, height int, seedA, seedB int64) bool {
			opts := DefaultOptions()
			opts.IncludeAA = true
			opts.SkipDiffImage = true

			a := noiseImage(width, height, seedA)
			b := noiseImage(width, height, seedB)

			withAA, err := New(opts).CompareImages(a, b)
			if err != nil {
				return false
			}
			withoutAA, err := engine.CompareImages(a, b)
			if err != nil {
				return false
			}
			return withAA.DiffPixels >= withoutAA.DiffPixels
		},
		dims, dims, gen.Int64(), gen.Int64(),
	))

	properties.TestingRun(t)
}
