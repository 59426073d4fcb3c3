package media

import "context"

// SourceInfo describes a video stream before any frame is read.
type SourceInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
}

// Source yields frames in presentation order. ReadFrame returns io.EOF once
// the stream is exhausted.
type Source interface {
	Info() SourceInfo
	ReadFrame() (*Frame, error)
	Close() error
}

// Sink accepts composited frames and produces the working artifact at Path
// once closed.
type Sink interface {
	WriteFrame(f *Frame) error
	Close() error
	Path() string
}

// Backend opens sources and creates sinks for a job.
type Backend interface {
	OpenSource(ctx context.Context, path string) (Source, error)
	CreateSink(ctx context.Context, path string, info SourceInfo) (Sink, error)
}
