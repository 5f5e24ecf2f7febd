package stereo

import (
	"image"
	"math"
)

// share of the smaller image dimension used when no kernel size is configured
const autoKernelRatio = 0.045

// Field is a per-pixel scalar map with the size of its source image, row-major.
type Field struct {
	W, H int
	Data []float64
}

func NewField(w, h int) Field {
	return Field{W: w, H: h, Data: make([]float64, w*h)}
}

func (f Field) At(x, y int) float64 {
	return f.Data[y*f.W+x]
}

// KernelFor derives an odd blur kernel size of about 4.5% of the smaller side.
func KernelFor(w, h int) int {
	m := w
	if h < m {
		m = h
	}
	k := int(math.Round(float64(m) * autoKernelRatio))
	if k%2 == 0 {
		k++
	}
	if k < 3 {
		k = 3
	}
	return k
}

// ApproximateDepth blurs the luminance of img with a ksize x ksize gaussian
// and scales it to [0, 1]. A ksize <= 0 picks KernelFor the image size.
func ApproximateDepth(img *image.RGBA, ksize int) Field {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if ksize <= 0 {
		ksize = KernelFor(w, h)
	}
	if ksize%2 == 0 {
		ksize++
	}

	gray := luminance(img)
	kernel := gaussianKernel(ksize)
	r := ksize / 2

	// horizontal pass
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var sum float64
			for i := -r; i <= r; i++ {
				sum += kernel[i+r] * row[reflect101(x+i, w)]
			}
			tmp[y*w+x] = sum
		}
	}

	// vertical pass, rounded back to 8 bits like the gray source
	depth := NewField(w, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			var sum float64
			for i := -r; i <= r; i++ {
				sum += kernel[i+r] * tmp[reflect101(y+i, h)*w+x]
			}
			depth.Data[y*w+x] = clamp(math.Round(sum), 0, 255) / 255
		}
	}
	return depth
}

func luminance(img *image.RGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		i := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			r := float64(img.Pix[i])
			g := float64(img.Pix[i+1])
			bl := float64(img.Pix[i+2])
			gray[y*w+x] = math.Round(0.299*r + 0.587*g + 0.114*bl)
			i += 4
		}
	}
	return gray
}

// gaussianKernel returns normalised weights, sigma derived from the size.
func gaussianKernel(ksize int) []float64 {
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	r := ksize / 2
	k := make([]float64, ksize)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// reflect101 mirrors i into [0, n) without repeating the edge: dcb|abcd|cba
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*(n-1) - i
		}
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
