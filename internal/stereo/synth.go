package stereo

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	eyeLeft  = 0.5
	eyeRight = -0.5
)

type Synthesizer struct {
	shift  float64
	kernel int
}

// NewSynthesizer builds a synthesizer for a shift magnitude in pixels.
// kernel is the depth blur size, 0 derives it from each frame.
func NewSynthesizer(shiftPixels float64, kernel int) *Synthesizer {
	return &Synthesizer{shift: shiftPixels, kernel: kernel}
}

// Synthesize returns a (2w x h) frame: left eye then right eye.
func (s *Synthesizer) Synthesize(src image.Image) *image.RGBA {
	img := ToRGBA(src)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	depth := ApproximateDepth(img, s.kernel)
	disp := ComputeDisparity(depth, s.shift)

	left := image.NewRGBA(image.Rect(0, 0, w, h))
	right := image.NewRGBA(image.Rect(0, 0, w, h))
	Remap(img, left, disp, eyeLeft)
	Remap(img, right, disp, eyeRight)

	return Concat(left, right)
}

// Remap fills dst by sampling src at x + eye*disparity on the same row.
// Sample columns are clamped to [0, w-1].
func Remap(src, dst *image.RGBA, disp Field, eye float64) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	maxX := float64(w - 1)
	px := make([]uint8, 4)
	for y := 0; y < h; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		di := dst.PixOffset(0, y)
		for x := 0; x < w; x++ {
			fx := clamp(float64(x)+eye*disp.At(x, y), 0, maxX)
			sampleRow(row, w, fx, px)
			copy(dst.Pix[di:di+4], px)
			di += 4
		}
	}
}

// sampleRow interpolates between the two columns around fx, replicating the last column.
func sampleRow(row []uint8, w int, fx float64, out []uint8) {
	x0 := int(math.Floor(fx))
	t := fx - float64(x0)
	x1 := x0 + 1
	if x1 >= w {
		x1 = w - 1
	}
	i0, i1 := x0*4, x1*4
	for c := 0; c < 3; c++ {
		v := (1-t)*float64(row[i0+c]) + t*float64(row[i1+c])
		out[c] = uint8(clamp(v, 0, 255) + 0.5)
	}
	out[3] = 255
}

// Concat places left and right next to each other.
func Concat(left, right *image.RGBA) *image.RGBA {
	lb, rb := left.Bounds(), right.Bounds()
	h := lb.Dy()
	if rb.Dy() > h {
		h = rb.Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), h))
	xdraw.Copy(out, image.Point{}, left, lb, xdraw.Src, nil)
	xdraw.Copy(out, image.Point{X: lb.Dx()}, right, rb, xdraw.Src, nil)
	return out
}

// ToRGBA converts any image to RGBA anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}
