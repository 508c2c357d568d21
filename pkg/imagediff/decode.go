package imagediff

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	// Registered decoders: captures are PNG, but baselines may come from other tools.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DecodeError is returned when one of the payloads is not a decodable raster image.
type DecodeError struct {
	Which string // "reference" or "candidate"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s image: %v", e.Which, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode decodes payload into a zero-origin NRGBA image.
func Decode(payload []byte) (*image.NRGBA, string, error) {
	if len(payload) == 0 {
		return nil, "", image.ErrFormat
	}

	src, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}

	return toNRGBA(src), format, nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	if nrgba, ok := src.(*image.NRGBA); ok && bounds.Min == (image.Point{}) && nrgba.Stride == 4*bounds.Dx() {
		return nrgba
	}

	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}
