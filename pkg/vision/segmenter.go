package vision

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// Tolerance is the per-channel colour distance below which a pixel joins the
// background region of a seed.
const Tolerance = 30

// ErrEmpty is returned when nothing survives background removal
var ErrEmpty = errors.New("vision: segmentation left no foreground")

// Segmenter removes a design's surrounding canvas with a multi-seed flood
// fill and trims the result to the remaining content.
type Segmenter struct{}

// New creates a new Segmenter
func New() *Segmenter {
	return &Segmenter{}
}

// Region is a rectangle in image pixel coordinates
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect converts the region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Segment removes the background of img and returns the trimmed foreground.
// ErrEmpty means the image held nothing to composite.
func (s *Segmenter) Segment(img image.Image) (*image.NRGBA, error) {
	masked := s.RemoveBackground(img)
	_, trimmed, ok := s.Trim(masked)
	if !ok {
		return nil, ErrEmpty
	}
	return trimmed, nil
}

// SeedPoints returns the flood fill seeds for a w x h image: the four
// corners, the top and bottom midpoints and the left and right midpoints.
func SeedPoints(w, h int) []image.Point {
	return []image.Point{
		{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1},
		{w / 2, 0}, {w / 2, h - 1}, {0, h / 2}, {w - 1, h / 2},
	}
}

// RemoveBackground returns a copy of img in which every pixel reachable from
// a seed through similar colours is fully transparent. The input is not
// modified.
func (s *Segmenter) RemoveBackground(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	if w == 0 || h == 0 {
		return out
	}

	fill := newFloodFill(out)
	for _, seed := range SeedPoints(w, h) {
		if fill.visited[seed.Y*w+seed.X] {
			continue
		}
		fill.run(seed.X, seed.Y)
	}
	return out
}

// Trim crops img to the bounding box of its non-transparent pixels.
// ok is false when every pixel is fully transparent.
func (s *Segmenter) Trim(img *image.NRGBA) (Region, *image.NRGBA, bool) {
	box, ok := OpaqueBounds(img)
	if !ok {
		return Region{}, nil, false
	}
	return box, imaging.Crop(img, box.Rect()), true
}

// OpaqueBounds returns the bounding box of pixels with non-zero alpha,
// relative to the image origin.
func OpaqueBounds(img *image.NRGBA) (Region, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	minX, minY, maxX, maxY := w, h, -1, -1

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			if row[x*4+3] == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < 0 {
		return Region{}, false
	}
	return Region{
		X:      b.Min.X + minX,
		Y:      b.Min.Y + minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}, true
}

// floodFill carries the per-image state of one RemoveBackground call
type floodFill struct {
	img     *image.NRGBA
	w, h    int
	visited []bool
	stack   []int
}

func newFloodFill(img *image.NRGBA) *floodFill {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	return &floodFill{
		img:     img,
		w:       w,
		h:       h,
		visited: make([]bool, w*h),
		stack:   make([]int, 0, 1024),
	}
}

func (f *floodFill) offset(x, y int) int {
	return y*f.img.Stride + x*4
}

// run absorbs the 4-connected region around (sx, sy) whose colour is within
// Tolerance of the seed colour.
func (f *floodFill) run(sx, sy int) {
	pix := f.img.Pix
	i := f.offset(sx, sy)
	sr, sg, sb := int(pix[i]), int(pix[i+1]), int(pix[i+2])

	f.stack = append(f.stack[:0], sy*f.w+sx)
	for len(f.stack) > 0 {
		p := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		if f.visited[p] {
			continue
		}

		x, y := p%f.w, p/f.w
		i := f.offset(x, y)
		if absDiff(int(pix[i]), sr) >= Tolerance ||
			absDiff(int(pix[i+1]), sg) >= Tolerance ||
			absDiff(int(pix[i+2]), sb) >= Tolerance {
			continue
		}

		pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 0
		f.visited[p] = true

		if x+1 < f.w {
			f.stack = append(f.stack, p+1)
		}
		if x > 0 {
			f.stack = append(f.stack, p-1)
		}
		if y+1 < f.h {
			f.stack = append(f.stack, p+f.w)
		}
		if y > 0 {
			f.stack = append(f.stack, p-f.w)
		}
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
