package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// decodeFrame decodes raw JPEG bytes and applies the corruption heuristics:
// sane dimensions, a color (3-channel) image, and a mean brightness inside
// the plausible band. Near-uniform black or white frames indicate a corrupt
// read and are rejected.
func decodeFrame(data []byte, cfg Config) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("capture: empty frame")
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("capture: decoding frame: %w", err)
	}

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return nil, fmt.Errorf("capture: not a color frame")
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < cfg.MinDimension || h < cfg.MinDimension {
		return nil, fmt.Errorf("capture: frame too small (%dx%d)", w, h)
	}
	if w > cfg.MaxDimension || h > cfg.MaxDimension {
		return nil, fmt.Errorf("capture: frame too large (%dx%d)", w, h)
	}

	rgba := toRGBA(img)

	mean := meanBrightness(rgba)
	if mean <= cfg.MinBrightness || mean >= cfg.MaxBrightness {
		return nil, fmt.Errorf("capture: implausible brightness %.2f", mean)
	}

	return rgba, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// meanBrightness averages the color channels over a pixel grid. Sampling
// every fourth pixel in each direction is plenty to detect the uniform
// black/white frames produced by a corrupted read.
func meanBrightness(img *image.RGBA) float64 {
	b := img.Bounds()
	var sum, count uint64
	for y := b.Min.Y; y < b.Max.Y; y += 4 {
		for x := b.Min.X; x < b.Max.X; x += 4 {
			i := img.PixOffset(x, y)
			sum += uint64(img.Pix[i]) + uint64(img.Pix[i+1]) + uint64(img.Pix[i+2])
			count += 3
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}
