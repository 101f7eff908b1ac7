package frames

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes ffmpeg and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

var runFFmpeg Runner = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}

// SetRunnerForTests swaps the ffmpeg runner and returns a restore function.
func SetRunnerForTests(r Runner) func() {
	prev := runFFmpeg
	runFFmpeg = r
	return func() { runFFmpeg = prev }
}

// ExtractOptions control frame extraction.
type ExtractOptions struct {
	Width  int
	Height int
	// FPS resamples the source when positive; zero keeps every source frame.
	FPS float64
}

// Extract decodes video into outDir as frame_%05d.png images and returns the
// number written.
func Extract(ctx context.Context, ffmpeg, video, outDir string, opts ExtractOptions) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create frame dir: %w", err)
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", video}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", opts.Width, opts.Height))
	}
	if opts.FPS > 0 {
		args = append(args, "-r", strconv.FormatFloat(opts.FPS, 'f', -1, 64))
	}
	args = append(args, "-q:v", "2", filepath.Join(outDir, Pattern))

	if out, err := runFFmpeg(ctx, binaryOr(ffmpeg), args...); err != nil {
		return 0, fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(out)))
	}
	count := Count(outDir)
	if count == 0 {
		return 0, fmt.Errorf("ffmpeg extract produced no frames from %s", filepath.Base(video))
	}
	return count, nil
}

// AssembleOptions control reassembly of a frame sequence into a container.
type AssembleOptions struct {
	FPS         int
	Codec       string
	CRF         int
	PixelFormat string
}

// Assemble muxes a contiguous frame_%05d.png sequence in seqDir into output.
func Assemble(ctx context.Context, ffmpeg, seqDir, output string, opts AssembleOptions) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Codec == "" {
		opts.Codec = "libx264"
	}
	if opts.PixelFormat == "" {
		opts.PixelFormat = "yuv420p"
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-framerate", strconv.Itoa(opts.FPS),
		"-i", filepath.Join(seqDir, Pattern),
		"-c:v", opts.Codec,
		"-pix_fmt", opts.PixelFormat,
		"-crf", strconv.Itoa(opts.CRF),
		output,
	}
	if out, err := runFFmpeg(ctx, binaryOr(ffmpeg), args...); err != nil {
		return fmt.Errorf("ffmpeg assemble: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func binaryOr(binary string) string {
	if strings.TrimSpace(binary) == "" {
		return "ffmpeg"
	}
	return binary
}
