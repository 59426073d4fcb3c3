package media

import (
	"fmt"
	"image"
	"math"
)

// Channels is the number of color channels per pixel. Pixel order is
// B, G, R throughout the pipeline.
const Channels = 3

// Frame is one decoded video instant as packed 8-bit BGR.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]byte, width*height*Channels)}
}

// Validate checks that Pix holds exactly Width*Height*3 bytes.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height*Channels {
		return fmt.Errorf("frame %dx%d has %d bytes", f.Width, f.Height, len(f.Pix))
	}
	return nil
}

func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = append([]byte(nil), f.Pix...)
	return &c
}

// ToFloat scales the frame into [0,1].
func (f *Frame) ToFloat() *FloatImage {
	out := NewFloatImage(f.Width, f.Height)
	for i, v := range f.Pix {
		out.Pix[i] = float32(v) / 255
	}
	return out
}

// ToNRGBA converts to a standard library image for encoding.
func (f *Frame) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p, q := 0, 0; p < len(f.Pix); p, q = p+Channels, q+4 {
		img.Pix[q] = f.Pix[p+2]
		img.Pix[q+1] = f.Pix[p+1]
		img.Pix[q+2] = f.Pix[p]
		img.Pix[q+3] = 0xff
	}
	return img
}

// FrameFromNRGBA packs img into BGR, dropping alpha.
func FrameFromNRGBA(img *image.NRGBA) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			p := (y*f.Width + x) * Channels
			q := x * 4
			f.Pix[p] = row[q+2]
			f.Pix[p+1] = row[q+1]
			f.Pix[p+2] = row[q]
		}
	}
	return f
}

// SolidFrame fills a frame with the color (r, g, b).
func SolidFrame(width, height int, r, g, b uint8) *Frame {
	f := NewFrame(width, height)
	for p := 0; p < len(f.Pix); p += Channels {
		f.Pix[p] = b
		f.Pix[p+1] = g
		f.Pix[p+2] = r
	}
	return f
}

// FloatImage is a BGR raster in normalized floating point.
type FloatImage struct {
	Width  int
	Height int
	Pix    []float32
}

func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{Width: width, Height: height, Pix: make([]float32, width*height*Channels)}
}

func (f *FloatImage) Clone() *FloatImage {
	c := *f
	c.Pix = append([]float32(nil), f.Pix...)
	return &c
}

// Quantize rounds back to 8 bits, clamping to [0,255].
func (f *FloatImage) Quantize() *Frame {
	out := NewFrame(f.Width, f.Height)
	for i, v := range f.Pix {
		out.Pix[i] = QuantizeChannel(v)
	}
	return out
}

func QuantizeChannel(v float32) uint8 {
	x := math.Round(float64(v) * 255)
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	if x >= 255 {
		return 255
	}
	return uint8(x)
}

// Matte is a single channel opacity map, 0 background and 1 subject.
type Matte struct {
	Width  int
	Height int
	Pix    []float32
}

func NewMatte(width, height int) *Matte {
	return &Matte{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// UniformMatte returns a matte filled with alpha.
func UniformMatte(width, height int, alpha float32) *Matte {
	m := NewMatte(width, height)
	for i := range m.Pix {
		m.Pix[i] = alpha
	}
	return m
}
