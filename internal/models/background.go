package models

import "io"

// DefaultColor is green screen, in (r, g, b).
var DefaultColor = [3]int{0, 255, 0}

// BackgroundSpec describes the replacement background. Color is (r, g, b)
// and is used when ImagePath is empty or cannot be found.
type BackgroundSpec struct {
	Color     [3]int
	ImagePath string
}

// RenderOptions are the per-job compositing parameters.
type RenderOptions struct {
	Background       BackgroundSpec
	BlurRadius       int
	LightingStrength float64
}

// SubmitInput is the validated form of a job or preview request.
type SubmitInput struct {
	JobID            string  `json:"job_id" validate:"omitempty,max=64,excludesall=/\\"`
	VideoName        string  `json:"video_name" validate:"required,lte=255"`
	VideoPath        string  `json:"-"`
	BackgroundPath   string  `json:"-"`
	ColorR           int     `json:"color_r" validate:"gte=0,lte=255"`
	ColorG           int     `json:"color_g" validate:"gte=0,lte=255"`
	ColorB           int     `json:"color_b" validate:"gte=0,lte=255"`
	BlurRadius       int     `json:"blur_radius" validate:"gte=0,lte=256"`
	LightingStrength float64 `json:"lighting_strength" validate:"gte=0,lte=1"`
	OutputDir        string  `json:"output_dir" validate:"omitempty,max=128"`
}

func (in *SubmitInput) Options() RenderOptions {
	return RenderOptions{
		Background: BackgroundSpec{
			Color:     [3]int{in.ColorR, in.ColorG, in.ColorB},
			ImagePath: in.BackgroundPath,
		},
		BlurRadius:       in.BlurRadius,
		LightingStrength: in.LightingStrength,
	}
}

// SubmitResponse is returned immediately on job acceptance.
type SubmitResponse struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Cached     bool      `json:"cached"`
	OutputName string    `json:"output_name"`
}

// PreviewResponse carries one composited frame as a data URI.
type PreviewResponse struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Upload is a client supplied file.
type Upload struct {
	Name   string
	Reader io.Reader
}
