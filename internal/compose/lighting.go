package compose

import (
	"math"

	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/lucasb-eyer/go-colorful"
)

// Epsilon guards the standard deviation ratio against flat channels.
const Epsilon = 1e-4

// LabStats is the per-channel mean and standard deviation of a raster in
// CIE L*a*b*.
type LabStats struct {
	Mean [3]float64
	Std  [3]float64
}

func toLab(img *media.FloatImage) [3][]float64 {
	n := img.Width * img.Height
	var lab [3][]float64
	for c := range lab {
		lab[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		p := i * media.Channels
		col := colorful.Color{R: float64(img.Pix[p+2]), G: float64(img.Pix[p+1]), B: float64(img.Pix[p])}
		lab[0][i], lab[1][i], lab[2][i] = col.Lab()
	}
	return lab
}

func statsOf(lab [3][]float64) *LabStats {
	s := &LabStats{}
	for c := range lab {
		n := float64(len(lab[c]))
		if n == 0 {
			continue
		}
		var sum float64
		for _, v := range lab[c] {
			sum += v
		}
		mean := sum / n
		var sq float64
		for _, v := range lab[c] {
			d := v - mean
			sq += d * d
		}
		s.Mean[c] = mean
		s.Std[c] = math.Sqrt(sq / n)
	}
	return s
}

// ComputeLabStats returns the Lab statistics of img.
func ComputeLabStats(img *media.FloatImage) *LabStats {
	return statsOf(toLab(img))
}

// Match shifts the color statistics of fg toward ref, interpolating between
// the untouched and fully transferred colors by strength. With a
// non-positive strength or no reference fg is returned as is.
func Match(fg *media.FloatImage, ref *LabStats, strength float64) *media.FloatImage {
	if strength <= 0 || ref == nil {
		return fg
	}
	if strength > 1 {
		strength = 1
	}
	lab := toLab(fg)
	own := statsOf(lab)

	for c := range lab {
		scale := ref.Std[c] / math.Max(own.Std[c], Epsilon)
		for i, v := range lab[c] {
			matched := (v-own.Mean[c])*scale + ref.Mean[c]
			lab[c][i] = matched*strength + v*(1-strength)
		}
	}

	out := media.NewFloatImage(fg.Width, fg.Height)
	for i := range lab[0] {
		col := colorful.Lab(lab[0][i], lab[1][i], lab[2][i]).Clamped()
		p := i * media.Channels
		out.Pix[p] = float32(col.B)
		out.Pix[p+1] = float32(col.G)
		out.Pix[p+2] = float32(col.R)
	}
	return out
}
