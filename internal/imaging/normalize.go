package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// DefaultQuality is the JPEG quality used when callers pass a non-positive value.
const DefaultQuality = 85

// maxPixels bounds the decoded pixel count of an accepted image.
const maxPixels = 10_000_000

var (
	// ErrProcessing classifies every normalization failure; callers abort the
	// upload and persist nothing.
	ErrProcessing = errors.New("imaging: processing failed")

	// ErrTooLarge is returned (wrapped in ErrProcessing) when the decoded
	// image exceeds the pixel ceiling.
	ErrTooLarge = errors.New("imaging: image too large")
)

// Normalize decodes data in any registered format and re-encodes it as a
// baseline JPEG at the given quality, flattening any alpha channel over
// white. The output is a function of input bytes and quality only; callers
// must not rely on byte-identical output across encoder versions.
func Normalize(data []byte, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProcessing, err)
	}

	bounds := decoded.Bounds()
	if bounds.Dx()*bounds.Dy() > maxPixels {
		return nil, fmt.Errorf("%w: %w: %d pixels", ErrProcessing, ErrTooLarge, bounds.Dx()*bounds.Dy())
	}

	flattened := image.NewRGBA(bounds)
	draw.Draw(flattened, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flattened, bounds, decoded, bounds.Min, draw.Over)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, flattened, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrProcessing, err)
	}
	return out.Bytes(), nil
}
