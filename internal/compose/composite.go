package compose

import (
	"math"

	"github.com/amankumarsingh77/backdrop/internal/media"
)

// Composite blends fg over bg with alpha and returns an 8-bit frame of the
// background's size. Mismatched alpha or foreground rasters are resized to
// the background unless strict is set, in which case a FrameShapeError is
// returned.
func Composite(fg *media.FloatImage, alpha *media.Matte, bg *Background, strength float64, strict bool) (*media.Frame, error) {
	w, h := bg.Raster.Width, bg.Raster.Height

	if alpha.Width != w || alpha.Height != h || len(alpha.Pix) != alpha.Width*alpha.Height {
		if strict || len(alpha.Pix) != alpha.Width*alpha.Height {
			return nil, &FrameShapeError{What: "alpha", Width: w, Height: h, GotW: alpha.Width, GotH: alpha.Height}
		}
		alpha = &media.Matte{Width: w, Height: h, Pix: resizeBilinear(alpha.Pix, alpha.Width, alpha.Height, 1, w, h)}
	}
	if fg.Width != w || fg.Height != h || len(fg.Pix) != fg.Width*fg.Height*media.Channels {
		if strict || len(fg.Pix) != fg.Width*fg.Height*media.Channels {
			return nil, &FrameShapeError{What: "foreground", Width: w, Height: h, GotW: fg.Width, GotH: fg.Height}
		}
		fg = &media.FloatImage{Width: w, Height: h, Pix: resizeBilinear(fg.Pix, fg.Width, fg.Height, media.Channels, w, h)}
	}

	fg = clampImage(fg)
	if strength > 0 && bg.Stats != nil {
		fg = Match(fg, bg.Stats, strength)
	}

	out := media.NewFrame(w, h)
	for i := 0; i < w*h; i++ {
		a := clamp01(alpha.Pix[i])
		p := i * media.Channels
		for c := 0; c < media.Channels; c++ {
			v := fg.Pix[p+c]*a + bg.Raster.Pix[p+c]*(1-a)
			out.Pix[p+c] = media.QuantizeChannel(v)
		}
	}
	if out.Width != w || out.Height != h || len(out.Pix) != w*h*media.Channels {
		return nil, &FrameShapeError{What: "composite", Width: w, Height: h, GotW: out.Width, GotH: out.Height}
	}
	return out, nil
}

func clamp01(v float32) float32 {
	if v > 0 {
		if v > 1 {
			return 1
		}
		return v
	}
	// also maps NaN to 0
	return 0
}

func clampImage(img *media.FloatImage) *media.FloatImage {
	out := img.Clone()
	for i, v := range out.Pix {
		out.Pix[i] = clamp01(v)
	}
	return out
}

// resizeBilinear samples src (sw x sh, ch interleaved channels) at pixel
// centers of a dw x dh grid.
func resizeBilinear(src []float32, sw, sh, ch, dw, dh int) []float32 {
	dst := make([]float32, dw*dh*ch)
	if sw <= 0 || sh <= 0 {
		return dst
	}
	sx := float64(sw) / float64(dw)
	sy := float64(sh) / float64(dh)
	for y := 0; y < dh; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		wy := float32(fy - float64(y0))
		y1 := clampIndex(y0+1, sh)
		y0 = clampIndex(y0, sh)
		for x := 0; x < dw; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			wx := float32(fx - float64(x0))
			x1 := clampIndex(x0+1, sw)
			x0 = clampIndex(x0, sw)
			for c := 0; c < ch; c++ {
				a := src[(y0*sw+x0)*ch+c]
				b := src[(y0*sw+x1)*ch+c]
				cc := src[(y1*sw+x0)*ch+c]
				d := src[(y1*sw+x1)*ch+c]
				top := a + (b-a)*wx
				bot := cc + (d-cc)*wx
				dst[(y*dw+x)*ch+c] = top + (bot-top)*wy
			}
		}
	}
	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
