package compose

import "fmt"

// FrameShapeError reports a raster whose size does not match the frame.
type FrameShapeError struct {
	What          string
	Width, Height int
	GotW, GotH    int
}

func (e *FrameShapeError) Error() string {
	return fmt.Sprintf("%s is %dx%d, want %dx%d", e.What, e.GotW, e.GotH, e.Width, e.Height)
}
