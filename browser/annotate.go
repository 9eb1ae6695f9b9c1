package browser

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"
	"strings"

	webpenc "github.com/chai2010/webp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

var annotationColor = hexToRGBA("#FF6B6B")

// AnnotateScreenshot draws a labelled box around box (CSS pixels) on the
// encoded screenshot and re-encodes it as format.
func AnnotateScreenshot(data []byte, box BoundingBox, label string, devicePixelRatio float64, format string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	if devicePixelRatio <= 0 {
		devicePixelRatio = 1
	}
	drawHighlight(rgba, scaleBoundingBox(box, devicePixelRatio), label, annotationColor)
	return EncodeImage(rgba, format)
}

// EncodeImage encodes img as png, jpeg or webp.
func EncodeImage(img image.Image, format string) ([]byte, error) {
	normalized, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	switch normalized {
	case "jpeg":
		err = jpeg.Encode(&buffer, img, &jpeg.Options{Quality: 90})
	case "webp":
		err = webpenc.Encode(&buffer, img, &webpenc.Options{Quality: 90})
	default:
		err = png.Encode(&buffer, img)
	}
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func drawHighlight(img *image.RGBA, bbox BoundingBox, label string, c color.RGBA) {
	bounds := img.Bounds()
	x1 := int(math.Round(bbox.X))
	y1 := int(math.Round(bbox.Y))
	x2 := int(math.Round(bbox.X + bbox.Width))
	y2 := int(math.Round(bbox.Y + bbox.Height))

	x1 = clampInt(x1, bounds.Min.X, bounds.Max.X)
	y1 = clampInt(y1, bounds.Min.Y, bounds.Max.Y)
	x2 = clampInt(x2, bounds.Min.X, bounds.Max.X)
	y2 = clampInt(y2, bounds.Min.Y, bounds.Max.Y)
	if x2-x1 < 2 || y2-y1 < 2 {
		return
	}
	drawRect(img, x1, y1, x2, y2, c)
	drawLabel(img, x1, y2, c, label)
}

func drawRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	lineWidth := 2
	for i := 0; i < lineWidth; i++ {
		drawHorizontal(img, x1+i, x2-i, y1+i, c)
		drawHorizontal(img, x1+i, x2-i, y2-1-i, c)
		drawVertical(img, x1+i, y1+i, y2-i, c)
		drawVertical(img, x2-1-i, y1+i, y2-i, c)
	}
}

func drawHorizontal(img *image.RGBA, x1, x2, y int, c color.RGBA) {
	if y < img.Bounds().Min.Y || y >= img.Bounds().Max.Y {
		return
	}
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	x1 = clampInt(x1, img.Bounds().Min.X, img.Bounds().Max.X)
	x2 = clampInt(x2, img.Bounds().Min.X, img.Bounds().Max.X)
	for x := x1; x < x2; x++ {
		img.SetRGBA(x, y, c)
	}
}

func drawVertical(img *image.RGBA, x, y1, y2 int, c color.RGBA) {
	if x < img.Bounds().Min.X || x >= img.Bounds().Max.X {
		return
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	y1 = clampInt(y1, img.Bounds().Min.Y, img.Bounds().Max.Y)
	y2 = clampInt(y2, img.Bounds().Min.Y, img.Bounds().Max.Y)
	for y := y1; y < y2; y++ {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel writes label below the box, or inside its bottom edge when the
// box touches the bottom of the image.
func drawLabel(img *image.RGBA, x, y int, c color.RGBA, label string) {
	if label == "" {
		return
	}
	face := basicfont.Face7x13
	drawer := font.Drawer{Dst: img, Src: image.NewUniform(color.White), Face: face}
	textWidth := drawer.MeasureString(label).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	pad := 2
	if y+textHeight+pad*2 > img.Bounds().Max.Y {
		y -= textHeight + pad*2
	}
	bgX1 := clampInt(x, img.Bounds().Min.X, img.Bounds().Max.X)
	bgY1 := clampInt(y, img.Bounds().Min.Y, img.Bounds().Max.Y)
	bgX2 := clampInt(x+textWidth+pad*2, img.Bounds().Min.X, img.Bounds().Max.X)
	bgY2 := clampInt(y+textHeight+pad*2, img.Bounds().Min.Y, img.Bounds().Max.Y)
	draw.Draw(img, image.Rect(bgX1, bgY1, bgX2, bgY2), image.NewUniform(c), image.Point{}, draw.Src)
	drawer.Dot = fixed.Point26_6{
		X: fixed.I(bgX1 + pad),
		Y: fixed.I(bgY1 + pad + face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(label)
}

func scaleBoundingBox(bounding BoundingBox, devicePixelRatio float64) BoundingBox {
	return BoundingBox{
		X:      bounding.X * devicePixelRatio,
		Y:      bounding.Y * devicePixelRatio,
		Width:  bounding.Width * devicePixelRatio,
		Height: bounding.Height * devicePixelRatio,
	}
}

func hexToRGBA(hex string) color.RGBA {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.RGBA{R: 255, G: 255, B: 0, A: 255}
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		value, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return color.RGBA{R: 255, G: 255, B: 0, A: 255}
		}
		rgb[i] = uint8(value)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
