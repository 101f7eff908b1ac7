// Package synthetic draws a self-contained test clip: frames with an animated
// gradient background, a moving disc, and a boxed subtitle strip, plus the
// matching subtitle masks. It needs no external tools.
package synthetic

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"subclean/internal/media/frames"
	"subclean/internal/media/mask"
)

// Options size the generated clip.
type Options struct {
	Count     int
	Width     int
	Height    int
	BandRatio float64
}

// Result reports what Generate wrote.
type Result struct {
	Frames []string
	Masks  []string
}

var subtitleLengths = []int{26, 23, 25, 18, 24}

// Generate writes Count frames to framesDir and Count masks to masksDir.
// Frame i (1-based) is frame_%05d.png and its mask is mask_%05d.png.
func Generate(framesDir, masksDir string, opts Options) (Result, error) {
	if opts.Count <= 0 {
		opts.Count = 30
	}
	if opts.Width <= 0 {
		opts.Width = 256
	}
	if opts.Height <= 0 {
		opts.Height = 256
	}
	for _, dir := range []string{framesDir, masksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	gen := mask.Generator{BandRatio: opts.BandRatio}
	maskImg := gen.Render(opts.Width, opts.Height)
	band := gen.Band(opts.Width, opts.Height)

	var res Result
	for i := 0; i < opts.Count; i++ {
		frameName := frames.Name(i + 1)
		maskName := mask.NameFor(frameName)
		img := drawFrame(i, opts.Count, opts.Width, opts.Height, band)
		if err := mask.WritePNG(filepath.Join(framesDir, frameName), img); err != nil {
			return Result{}, fmt.Errorf("write frame %d: %w", i+1, err)
		}
		if err := mask.WritePNG(filepath.Join(masksDir, maskName), maskImg); err != nil {
			return Result{}, fmt.Errorf("write mask %d: %w", i+1, err)
		}
		res.Frames = append(res.Frames, frameName)
		res.Masks = append(res.Masks, maskName)
	}
	return res, nil
}

func drawFrame(i, count, w, h int, band image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	phase := float64(i) / float64(count) * 2 * math.Pi
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: wave(phase + float64(x)/30),
				G: wave(phase + float64(y)/30 + math.Pi/3),
				B: wave(phase + float64(x+y)/40 + 2*math.Pi/3),
				A: 255,
			})
		}
	}

	cx := w/2 + int(float64(w)*0.2*math.Sin(float64(i)/5))
	cy := h*15/32 + int(float64(h)*0.12*math.Cos(float64(i)/3))
	fillDisc(img, cx, cy, max(w/17, 2), color.RGBA{R: 255, G: 255, A: 255})

	// Subtitle: a black box inside the mask band with white text-like bars.
	pad := max(band.Dy()/5, 1)
	box := image.Rect(w/25, band.Min.Y+pad, w-w/25, band.Max.Y-pad)
	if box.Empty() {
		return img
	}
	textLen := subtitleLengths[i%len(subtitleLengths)]
	boxWidth := min(box.Dx(), textLen*box.Dx()/26)
	box.Max.X = box.Min.X + boxWidth
	draw.Draw(img, box, image.NewUniform(color.Black), image.Point{}, draw.Src)
	glyph := max(box.Dx()/textLen, 2)
	for x := box.Min.X + 2; x+glyph-1 < box.Max.X-1; x += glyph {
		if (x/glyph+i)%5 == 4 {
			continue
		}
		bar := image.Rect(x, box.Min.Y+box.Dy()/3, x+glyph-1, box.Max.Y-box.Dy()/3)
		draw.Draw(img, bar, image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	return img
}

func wave(v float64) uint8 {
	c := 128 + 127*math.Sin(v)
	return uint8(math.Max(0, math.Min(255, c)))
}

func fillDisc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	b := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r && image.Pt(x, y).In(b) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
