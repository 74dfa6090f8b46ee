package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/mockup-forge/pkg/geometry"
	"github.com/menta2k/mockup-forge/pkg/types"
)

const (
	// PaddingX is kept free on both sides of the frame
	PaddingX = 20
	// PaddingTop is kept free above the design
	PaddingTop = 20

	// WatermarkMaxWidth is the widest a remote watermark is drawn
	WatermarkMaxWidth = 280
	// WatermarkMarginRight and WatermarkMarginBottom place the watermark
	// relative to the bottom-right corner of the template
	WatermarkMarginRight  = 20
	WatermarkMarginBottom = 50

	// TextWatermarkSize is the text watermark font size in points at 72 DPI
	TextWatermarkSize = 100
)

// TextWatermarkColor is translucent black
var TextWatermarkColor = color.NRGBA{0, 0, 0, 128}

// ErrFrameTooSmall is returned when padding leaves no room for the design
var ErrFrameTooSmall = errors.New("compositor: frame smaller than padding")

// WatermarkSource resolves a remote watermark URL to an image
type WatermarkSource interface {
	Watermark(ctx context.Context, url string) (image.Image, error)
}

var defaultFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// Compositor places designs on background templates
type Compositor struct {
	watermarks WatermarkSource
	font       *opentype.Font
	logger     *slog.Logger
}

// Option configures a Compositor
type Option func(*Compositor)

// WithWatermarkSource sets where remote watermarks come from
func WithWatermarkSource(src WatermarkSource) Option {
	return func(c *Compositor) {
		c.watermarks = src
	}
}

// WithFont replaces the text watermark font
func WithFont(f *opentype.Font) Option {
	return func(c *Compositor) {
		c.font = f
	}
}

// WithLogger sets the logger used for degraded watermarks
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger
	}
}

// New creates a Compositor
func New(opts ...Option) *Compositor {
	c := &Compositor{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a composited mockup
type Result struct {
	Image *image.NRGBA
	// Placed is where the scaled design landed on the template
	Placed image.Rectangle
	// Watermarked reports whether a watermark was drawn
	Watermarked bool
}

// Placement computes where a fgW x fgH design lands inside frame
func Placement(fgW, fgH int, frame types.Frame) (image.Rectangle, error) {
	availW := frame.W - 2*PaddingX
	availH := frame.H - PaddingTop
	if availW <= 0 || availH <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d", ErrFrameTooSmall, frame.W, frame.H)
	}
	if fgW <= 0 || fgH <= 0 {
		return image.Rectangle{}, fmt.Errorf("compositor: empty design")
	}

	scale := geometry.ScaleToFit(float64(fgW), float64(fgH), float64(availW), float64(availH))
	w, h := geometry.FitSize(fgW, fgH, scale)

	x := frame.X + geometry.CenterOffset(frame.W, w)
	y := frame.Y + PaddingTop
	return image.Rect(x, y, x+w, y+h), nil
}

// Composite renders fg onto background inside frame and applies the
// watermark. The result has the template's size and is fully opaque.
func (c *Compositor) Composite(ctx context.Context, fg *image.NRGBA, background image.Image, frame types.Frame, wm types.WatermarkSpec) (*image.NRGBA, error) {
	res, err := c.Compose(ctx, fg, background, frame, wm)
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}

// Compose is Composite returning placement details as well
func (c *Compositor) Compose(ctx context.Context, fg *image.NRGBA, background image.Image, frame types.Frame, wm types.WatermarkSpec) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	placed, err := Placement(fg.Bounds().Dx(), fg.Bounds().Dy(), frame)
	if err != nil {
		return Result{}, err
	}

	// Overlays onto an opaque canvas interpolate by the source alpha only,
	// so template pixels under transparent design pixels keep their colour.
	canvas := imaging.Clone(background)
	flatten(canvas)

	design := imaging.Resize(fg, placed.Dx(), placed.Dy(), imaging.Lanczos)
	canvas = imaging.Overlay(canvas, design, placed.Min, 1.0)

	var watermarked bool
	switch wm.Kind {
	case types.WatermarkRemote:
		canvas, watermarked = c.drawRemote(ctx, canvas, wm.Value)
	case types.WatermarkText:
		watermarked = c.drawText(canvas, wm.Value)
	}

	return Result{Image: canvas, Placed: placed, Watermarked: watermarked}, nil
}

func (c *Compositor) drawRemote(ctx context.Context, canvas *image.NRGBA, url string) (*image.NRGBA, bool) {
	if c.watermarks == nil {
		c.logger.Warn("no watermark source configured, skipping watermark", "url", url)
		return canvas, false
	}

	mark, err := c.watermarks.Watermark(ctx, url)
	if err != nil {
		c.logger.Warn("watermark unavailable, skipping", "url", url, "error", err)
		return canvas, false
	}

	w, h := mark.Bounds().Dx(), mark.Bounds().Dy()
	if w == 0 || h == 0 {
		return canvas, false
	}
	if w > WatermarkMaxWidth {
		h = max(int(WatermarkMaxWidth*float64(h)/float64(w)), 1)
		w = WatermarkMaxWidth
		mark = imaging.Resize(mark, w, h, imaging.Lanczos)
	}

	b := canvas.Bounds()
	pos := image.Pt(b.Dx()-w-WatermarkMarginRight, b.Dy()-h-WatermarkMarginBottom)
	return imaging.Overlay(canvas, mark, pos, 1.0), true
}

func (c *Compositor) drawText(canvas *image.NRGBA, text string) bool {
	f := c.font
	if f == nil {
		var err error
		if f, err = defaultFont(); err != nil {
			c.logger.Warn("watermark font unavailable, skipping", "error", err)
			return false
		}
	}

	// Faces carry glyph buffers and are not safe for concurrent use.
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    TextWatermarkSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		c.logger.Warn("watermark face unavailable, skipping", "error", err)
		return false
	}
	defer face.Close()

	ink, _ := font.BoundString(face, text)
	if ink.Empty() {
		return false
	}

	b := canvas.Bounds()
	right := fixed.I(b.Dx() - WatermarkMarginRight)
	bottom := fixed.I(b.Dy() - WatermarkMarginBottom)

	d := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(TextWatermarkColor),
		Face: face,
		Dot:  fixed.Point26_6{X: right - ink.Max.X, Y: bottom - ink.Max.Y},
	}
	d.DrawString(text)
	return true
}

// flatten drops the alpha channel, keeping colour values as stored
func flatten(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}
