package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Prober reads stream metadata with ffprobe.
type Prober struct {
	Path    string
	Timeout time.Duration
}

func (p *Prober) run(ctx context.Context, args ...string) (*ffprobeOutput, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe error: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return nil, fmt.Errorf("no video stream")
	}
	return &res, nil
}

// Probe reports dimensions, frame rate and frame count of the first video
// stream. Frame count comes from container metadata and falls back to
// counting packets when the container does not record it.
func (p *Prober) Probe(ctx context.Context, path string) (SourceInfo, error) {
	res, err := p.run(ctx, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames",
		"-of", "json", path)
	if err != nil {
		return SourceInfo{}, err
	}
	s := res.Streams[0]
	info := SourceInfo{Width: s.Width, Height: s.Height}
	info.FPS = ParseRate(s.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = ParseRate(s.RFrameRate)
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
		return info, nil
	}

	slow, err := p.run(ctx, "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	if err != nil {
		return info, nil
	}
	if n, err := strconv.Atoi(slow.Streams[0].NbReadPackets); err == nil {
		info.FrameCount = n
	}
	return info, nil
}

// ParseRate parses ffprobe rates such as "30000/1001" or "25". Malformed or
// zero-denominator rates yield 0.
func ParseRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
