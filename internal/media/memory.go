package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// SliceSource serves frames from memory. Info may advertise a frame count
// that differs from len(Frames) to model truncated streams.
type SliceSource struct {
	SourceInfo SourceInfo
	Frames     []*Frame
	next       int
	closed     bool
}

func NewSliceSource(info SourceInfo, frames []*Frame) *SliceSource {
	return &SliceSource{SourceInfo: info, Frames: frames}
}

func (s *SliceSource) Info() SourceInfo { return s.SourceInfo }

func (s *SliceSource) ReadFrame() (*Frame, error) {
	if s.closed || s.next >= len(s.Frames) {
		return nil, io.EOF
	}
	f := s.Frames[s.next]
	s.next++
	return f, nil
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// RawFileSink appends raw BGR bytes to a file and keeps a copy of every
// frame written.
type RawFileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	Frames []*Frame
	// FailOn makes WriteFrame fail for the given zero-based write attempts.
	FailOn map[int]bool
	writes int
}

func NewRawFileSink(path string) (*RawFileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &RawFileSink{path: path, file: f}, nil
}

func (s *RawFileSink) WriteFrame(f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt := s.writes
	s.writes++
	if s.FailOn[attempt] {
		return fmt.Errorf("write %d rejected", attempt)
	}
	if _, err := s.file.Write(f.Pix); err != nil {
		return err
	}
	s.Frames = append(s.Frames, f.Clone())
	return nil
}

func (s *RawFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *RawFileSink) Path() string { return s.path }

// MemoryBackend maps source paths to in-memory clips and writes raw sinks.
type MemoryBackend struct {
	mu    sync.Mutex
	clips map[string]*SliceSource
	Sinks map[string]*RawFileSink
	Opens int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{clips: map[string]*SliceSource{}, Sinks: map[string]*RawFileSink{}}
}

// Register makes path resolve to a clip of frames described by info.
func (b *MemoryBackend) Register(path string, info SourceInfo, frames []*Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clips[path] = &SliceSource{SourceInfo: info, Frames: frames}
}

func (b *MemoryBackend) OpenSource(_ context.Context, path string) (Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clip, ok := b.clips[path]
	if !ok {
		return nil, fmt.Errorf("cannot open %s", path)
	}
	b.Opens++
	return NewSliceSource(clip.SourceInfo, clip.Frames), nil
}

func (b *MemoryBackend) CreateSink(_ context.Context, path string, _ SourceInfo) (Sink, error) {
	s, err := NewRawFileSink(path)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.Sinks[path] = s
	b.mu.Unlock()
	return s, nil
}

// OpenCount reports how many sources were opened.
func (b *MemoryBackend) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Opens
}
