package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Duration     string `json:"duration"`
	NBFrames     string `json:"nb_frames"`
	NBReadFrames string `json:"nb_read_frames"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Runner executes ffprobe and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

var runProbe Runner = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}

// SetRunnerForTests swaps the command runner and returns a restore function.
func SetRunnerForTests(r Runner) func() {
	prev := runProbe
	runProbe = r
	return func() { runProbe = prev }
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response. When countFrames is set ffprobe decodes the video stream to fill
// nb_read_frames, which is exact but slower.
func Inspect(ctx context.Context, binary, path string, countFrames bool) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams"}
	if countFrames {
		args = append(args, "-count_frames")
	}
	args = append(args, "-of", "json", "--", path)

	output, err := runProbe(ctx, binary, args...)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// FrameCount returns the first video stream's frame count, preferring the
// decoded count over the container header. Zero means unknown.
func (r Result) FrameCount() int {
	stream, ok := r.VideoStream()
	if !ok {
		return 0
	}
	for _, raw := range []string{stream.NBReadFrames, stream.NBFrames} {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// FrameRate returns the first video stream's average frame rate, falling back
// to the base rate. Zero means unknown.
func (r Result) FrameRate() float64 {
	stream, ok := r.VideoStream()
	if !ok {
		return 0
	}
	if rate := parseRational(stream.AvgFrameRate); rate > 0 {
		return rate
	}
	return parseRational(stream.RFrameRate)
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

func parseRational(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		f := parseFloat(num)
		if math.IsNaN(f) {
			return 0
		}
		return f
	}
	n, errN := strconv.ParseFloat(num, 64)
	d, errD := strconv.ParseFloat(den, 64)
	if errN != nil || errD != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
