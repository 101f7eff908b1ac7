// Package mask derives binary subtitle masks from frames.
//
// A mask has the frame's dimensions, is black everywhere except a white band
// covering the bottom of the frame where burnt-in subtitles sit, and is fully
// determined by the frame size and band ratio.
package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"subclean/internal/fileutil"
	"subclean/internal/media/frames"
)

// NameFor maps a frame file name to its mask name: a frame_ prefix becomes
// mask_ and the extension becomes .png. Other names keep their base name.
func NameFor(frameName string) string {
	base := strings.TrimSuffix(frameName, filepath.Ext(frameName)) + ".png"
	if rest, ok := strings.CutPrefix(base, "frame_"); ok {
		return "mask_" + rest
	}
	return base
}

// Generator writes subtitle-band masks.
type Generator struct {
	// BandRatio is the fraction of frame height covered, measured from the bottom.
	BandRatio float64
}

// Band returns the masked rectangle for a frame of the given size.
func (g Generator) Band(width, height int) image.Rectangle {
	ratio := g.BandRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.2
	}
	top := height - int(float64(height)*ratio)
	return image.Rect(0, top, width, height)
}

// Render builds the mask image for a frame of the given size.
func (g Generator) Render(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, g.Band(width, height), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	return img
}

// ForFrame reads the frame's dimensions and writes its mask to maskPath.
func (g Generator) ForFrame(framePath, maskPath string) error {
	f, err := os.Open(framePath)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(framePath), err)
	}
	return WritePNG(maskPath, g.Render(cfg.Width, cfg.Height))
}

// DeriveAll writes one mask per frame in framesDir into masksDir and returns
// the number written.
func (g Generator) DeriveAll(framesDir, masksDir string) (int, error) {
	names, err := frames.List(framesDir)
	if err != nil {
		return 0, fmt.Errorf("list frames: %w", err)
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("no frames in %s", framesDir)
	}
	if err := os.MkdirAll(masksDir, 0o755); err != nil {
		return 0, fmt.Errorf("create mask dir: %w", err)
	}
	for _, name := range names {
		if err := g.ForFrame(filepath.Join(framesDir, name), filepath.Join(masksDir, NameFor(name))); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}

// WritePNG encodes img to path atomically.
func WritePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return fileutil.WriteAtomic(path, &buf)
}
