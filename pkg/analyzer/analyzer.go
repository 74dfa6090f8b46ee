package analyzer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/mockup-forge/pkg/types"
)

// ErrTooSmall is returned for images that cannot contain the probe point
var ErrTooSmall = errors.New("image too small")

// ProbePoint is the pixel sampled to decide whether a design sits on a light
// or a dark canvas.
var ProbePoint = image.Pt(5, 5)

// LightThreshold is the mean RGB value above which a canvas counts as light
const LightThreshold = 128

// ImageAnalyzer loads source designs and inspects their canvas
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			SupportedFormats: []string{"jpg", "jpeg", "png", "webp", "gif"},
			MinImageSize:     ProbePoint.X + 1,
		},
	}
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(filepath string) (image.Image, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	return a.LoadImageFromReader(file)
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	return img, nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image is large enough to be classified
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("%w: %dx%d (minimum: %d)",
			ErrTooSmall, bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// Brightness returns the mean of the R, G and B channels at the probe point
func (a *ImageAnalyzer) Brightness(img image.Image) (float64, error) {
	b := img.Bounds()
	p := b.Min.Add(ProbePoint)
	if !p.In(b) {
		return 0, fmt.Errorf("probe point %v outside image %dx%d", ProbePoint, b.Dx(), b.Dy())
	}

	c := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA)
	return float64(int(c.R)+int(c.G)+int(c.B)) / 3, nil
}

// ClassifyBackground picks the template variant for a source image. Light
// canvases use the white template, everything else the black one.
func (a *ImageAnalyzer) ClassifyBackground(img image.Image) (types.Variant, error) {
	brightness, err := a.Brightness(img)
	if err != nil {
		return "", err
	}
	if brightness > LightThreshold {
		return types.VariantWhite, nil
	}
	return types.VariantBlack, nil
}
