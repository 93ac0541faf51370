package geometry

import (
	"image"

	"github.com/disintegration/imaging"
)

// Grayscale converts any image to an 8-bit gray image with a zero origin.
func Grayscale(img image.Image) *image.Gray {
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Pix[y*g.Stride+x] = nrgba.Pix[y*nrgba.Stride+x*4]
		}
	}
	return g
}

// Crop returns the sub-image inside r as a new image with a zero origin.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r)
}

// Enhance stretches contrast by percentage (-100..100). Zero is a no-op.
func Enhance(g *image.Gray, percentage float64) *image.Gray {
	if percentage == 0 {
		return g
	}
	return Grayscale(imaging.AdjustContrast(g, percentage))
}

// MedianBlur replaces every pixel by the median of its (2r+1)^2 window.
func MedianBlur(g *image.Gray, radius int) *image.Gray {
	if radius <= 0 {
		return g
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	window := make([]uint8, 0, (2*radius+1)*(2*radius+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				yy := clamp(y+dy, 0, h-1)
				for dx := -radius; dx <= radius; dx++ {
					xx := clamp(x+dx, 0, w-1)
					window = append(window, g.Pix[yy*g.Stride+xx])
				}
			}
			insertionSort(window)
			out.Pix[y*out.Stride+x] = window[len(window)/2]
		}
	}
	return out
}

// Otsu returns the threshold that maximises between-class variance.
func Otsu(g *image.Gray) uint8 {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}
	total := w * h
	if total == 0 {
		return 0
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB, best float64
	var wB int
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// Binarize thresholds with Otsu (pixels above the threshold become white)
// and inverts the result if it is mostly dark, so ink is always black on a
// white background.
func Binarize(g *image.Gray) *image.Gray {
	t := Otsu(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	var sum int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			if g.Pix[y*g.Stride+x] > t {
				v = 255
			}
			out.Pix[y*out.Stride+x] = v
			sum += int(v)
		}
	}
	if w*h > 0 && sum/(w*h) < 127 {
		for i := range out.Pix {
			out.Pix[i] = 255 - out.Pix[i]
		}
	}
	return out
}

// Contours returns the bounding boxes of the 8-connected black components
// of a binarized image, in scan order.
func Contours(bin *image.Gray) []image.Rectangle {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	seen := make([]bool, w*h)
	var boxes []image.Rectangle
	var stack []int

	ink := func(x, y int) bool { return bin.Pix[y*bin.Stride+x] < 128 }

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if seen[idx] || !ink(x, y) {
				continue
			}
			seen[idx] = true
			stack = append(stack[:0], idx)
			box := image.Rect(x, y, x+1, y+1)
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p%w, p/w
				box = box.Union(image.Rect(px, py, px+1, py+1))
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := px+dx, py+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						n := ny*w + nx
						if !seen[n] && ink(nx, ny) {
							seen[n] = true
							stack = append(stack, n)
						}
					}
				}
			}
			boxes = append(boxes, box)
		}
	}
	return boxes
}

// Mean returns the average intensity.
func Mean(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w*h == 0 {
		return 0
	}
	var sum int
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			sum += int(v)
		}
	}
	return float64(sum) / float64(w*h)
}

// Fill returns a w×h gray image of a single value.
func Fill(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// SubGray copies r out of g into a new zero-origin image.
func SubGray(g *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(g.Rect)
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := g.Pix[(r.Min.Y+y-g.Rect.Min.Y)*g.Stride+(r.Min.X-g.Rect.Min.X):]
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], src[:r.Dx()])
	}
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func insertionSort(v []uint8) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}
