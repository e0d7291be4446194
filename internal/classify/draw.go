package classify

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"ppewatch/internal/detection"
)

func detectionLabel(det detection.Detection) string {
	return fmt.Sprintf("%s %.0f%%", det.Class, det.Confidence*100)
}

// drawBox draws a rectangle outline clipped to the image bounds.
func drawBox(img *image.RGBA, box detection.BBox, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	x, y := box.X1, box.Y1
	w, h := box.X2-box.X1, box.Y2-box.Y1

	for t := 0; t < thickness; t++ {
		// Top edge
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+t, c)
			}
		}
		// Bottom edge
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+h-t, c)
			}
		}
		// Left edge
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.Set(x+t, j, c)
			}
		}
		// Right edge
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.Set(x+w-t, j, c)
			}
		}
	}
}

// drawLabel draws text on a dark background rectangle.
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, bgColor)
			}
		}
	}

	drawString(img, x, y+10, label, c)
}

// drawStatusOverlay stamps the domain name and recording state in the top
// left corner and the wall-clock time in the bottom right.
func drawStatusOverlay(img *image.RGBA, domain string, recording bool, now time.Time) {
	bounds := img.Bounds()

	drawShadowedString(img, 10, 25, domain, color.RGBA{255, 255, 255, 255})

	status := "Recording: OFF"
	statusColor := color.RGBA{255, 0, 0, 255}
	if recording {
		status = "Recording: ON"
		statusColor = color.RGBA{0, 255, 0, 255}
	}
	drawShadowedString(img, 10, 45, status, statusColor)

	stamp := now.Format("2006-01-02 15:04:05")
	x := bounds.Max.X - len(stamp)*7 - 10
	if x < 0 {
		x = 0
	}
	drawShadowedString(img, x, bounds.Max.Y-10, stamp, color.RGBA{255, 255, 255, 255})
}

// drawShadowedString draws the text with a one-pixel black drop shadow so
// it stays readable over bright frames.
func drawShadowedString(img *image.RGBA, x, y int, text string, c color.RGBA) {
	drawString(img, x+1, y+1, text, color.RGBA{0, 0, 0, 255})
	drawString(img, x, y, text, c)
}

func drawString(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
