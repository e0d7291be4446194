package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// fitFrame downscales a frame that exceeds the configured envelope so that
// downstream detection cost stays bounded. The target dimensions are derived
// from the aspect ratio: landscape sources pin the width, portrait sources
// pin the height. Frames inside the envelope pass through untouched.
func fitFrame(img *image.RGBA, data []byte, cfg Config) (*image.RGBA, []byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= cfg.MaxWidth && h <= cfg.MaxHeight {
		return img, data, nil
	}

	newW, newH := fitDimensions(w, h, cfg.TargetWidth, cfg.TargetHeight)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, nil, fmt.Errorf("capture: re-encoding resized frame: %w", err)
	}
	return dst, buf.Bytes(), nil
}

func fitDimensions(w, h, targetW, targetH int) (int, int) {
	aspect := float64(w) / float64(h)
	if aspect > 1 {
		newW := targetW
		newH := int(float64(newW) / aspect)
		return newW, newH
	}
	newH := targetH
	newW := int(float64(newH) * aspect)
	return newW, newH
}
