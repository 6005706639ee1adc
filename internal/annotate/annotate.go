// Package annotate burns a defect's tag number into its image as a small
// badge in the upper-left corner.
package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// ErrUnavailable is returned when no image processing is available; the
// caller persists the tag without an annotated image.
var ErrUnavailable = errors.New("image annotation unavailable")

const (
	JPEGQuality = 92
	BadgeInset  = 12

	minFontSize = 14.0
	maxFontSize = 64.0
)

var badgeColor = color.NRGBA{R: 17, G: 24, B: 39, A: 230}

type Annotator interface {
	Annotate(src []byte, tag int64) ([]byte, error)
}

type Nop struct{}

func (Nop) Annotate([]byte, int64) ([]byte, error) { return nil, ErrUnavailable }

// New returns a badge annotator, or Nop when annotation is disabled or the
// badge font cannot be loaded. The returned error explains the fallback and
// is informational only.
func New(enabled bool) (Annotator, error) {
	if !enabled {
		return Nop{}, fmt.Errorf("disabled by configuration: %w", ErrUnavailable)
	}
	a, err := NewBadgeAnnotator()
	if err != nil {
		return Nop{}, err
	}
	return a, nil
}

type BadgeAnnotator struct {
	font *opentype.Font
}

func NewBadgeAnnotator() (*BadgeAnnotator, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse badge font: %w", err)
	}
	return &BadgeAnnotator{font: f}, nil
}

func (a *BadgeAnnotator) Annotate(src []byte, tag int64) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)

	if err := a.drawBadge(canvas, strconv.FormatInt(tag, 10)); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

type badgeLayout struct {
	rect     image.Rectangle
	radius   int
	fontSize float64
	textDot  fixed.Point26_6
}

func (a *BadgeAnnotator) newFace(size float64) (font.Face, error) {
	face, err := opentype.NewFace(a.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("badge font face: %w", err)
	}
	return face, nil
}

func fontSizeFor(width, height int) float64 {
	size := float64(min(width, height)) / 14
	return max(minFontSize, min(maxFontSize, size))
}

// layout sizes the badge around the label; one-digit labels get a square
// badge and longer labels widen it.
func layout(face font.Face, size float64, label string) badgeLayout {
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	textW := font.MeasureString(face, label).Ceil()
	padX := int(size * 0.45)
	padY := int(size * 0.3)

	h := ascent + descent + 2*padY
	w := max(textW+2*padX, h)
	rect := image.Rect(BadgeInset, BadgeInset, BadgeInset+w, BadgeInset+h)
	return badgeLayout{
		rect:     rect,
		radius:   h / 4,
		fontSize: size,
		textDot:  fixed.P(rect.Min.X+(w-textW)/2, rect.Min.Y+padY+ascent),
	}
}

func (a *BadgeAnnotator) drawBadge(canvas *image.RGBA, label string) error {
	size := fontSizeFor(canvas.Bounds().Dx(), canvas.Bounds().Dy())
	face, err := a.newFace(size)
	if err != nil {
		return err
	}
	defer face.Close()

	l := layout(face, size, label)
	mask := roundedRect{rect: l.rect, radius: l.radius}
	draw.DrawMask(canvas, l.rect, image.NewUniform(badgeColor), image.Point{}, mask, l.rect.Min, draw.Over)

	d := font.Drawer{
		Dst:  canvas,
		Src:  image.White,
		Face: face,
		Dot:  l.textDot,
	}
	d.DrawString(label)
	return nil
}

// roundedRect is an alpha mask that is opaque inside a rectangle with
// rounded corners.
type roundedRect struct {
	rect   image.Rectangle
	radius int
}

func (r roundedRect) ColorModel() color.Model { return color.AlphaModel }

func (r roundedRect) Bounds() image.Rectangle { return r.rect }

func (r roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(r.rect)) {
		return color.Alpha{}
	}
	rad := r.radius
	cx, cy := x, y
	switch {
	case x < r.rect.Min.X+rad:
		cx = r.rect.Min.X + rad
	case x >= r.rect.Max.X-rad:
		cx = r.rect.Max.X - rad - 1
	}
	switch {
	case y < r.rect.Min.Y+rad:
		cy = r.rect.Min.Y + rad
	case y >= r.rect.Max.Y-rad:
		cy = r.rect.Max.Y - rad - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > rad*rad {
		return color.Alpha{}
	}
	return color.Alpha{A: 0xff}
}
