package compose

import (
	"fmt"
	"os"

	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/disintegration/imaging"
)

// Background is a replacement background resolved to one frame size.
type Background struct {
	Raster *media.FloatImage
	Frame  *media.Frame
	// Stats is nil when lighting transfer is disabled.
	Stats *LabStats
}

// BlurSigma returns the Gaussian sigma for a square kernel of 2r+1, using
// the same derivation as OpenCV for a zero sigma.
func BlurSigma(radius int) float64 {
	ksize := float64(2*radius + 1)
	return 0.3*((ksize-1)*0.5-1) + 0.8
}

// Resolve builds the background raster for frames of width x height. An
// image path that exists is loaded and stretched to the frame size;
// otherwise the solid color is used. Lab statistics are only computed when
// lightingStrength is positive.
func Resolve(spec models.BackgroundSpec, width, height, blurRadius int, lightingStrength float64) (*Background, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid background size %dx%d", width, height)
	}

	var frame *media.Frame
	if spec.ImagePath != "" && fileExists(spec.ImagePath) {
		img, err := imaging.Open(spec.ImagePath, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("load background image: %w", err)
		}
		resized := imaging.Resize(img, width, height, imaging.Linear)
		if blurRadius > 0 {
			resized = imaging.Blur(resized, BlurSigma(blurRadius))
		}
		frame = media.FrameFromNRGBA(resized)
	} else {
		// a uniform raster is unchanged by a normalized blur
		frame = media.SolidFrame(width, height, channel(spec.Color[0]), channel(spec.Color[1]), channel(spec.Color[2]))
	}

	bg := &Background{Frame: frame, Raster: frame.ToFloat()}
	if lightingStrength > 0 {
		bg.Stats = ComputeLabStats(bg.Raster)
	}
	return bg, nil
}

func channel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
