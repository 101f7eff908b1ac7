package mask

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestNameFor(t *testing.T) {
	tests := map[string]string{
		"frame_00001.png":  "mask_00001.png",
		"frame_00002.jpg":  "mask_00002.png",
		"shot42.png":       "shot42.png",
		"clip.frame_1.png": "clip.frame_1.png",
	}
	for in, want := range tests {
		if got := NameFor(in); got != want {
			t.Fatalf("NameFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBandMatchesDefaultRegion(t *testing.T) {
	got := Generator{BandRatio: 0.2}.Band(256, 256)
	if got != image.Rect(0, 205, 256, 256) {
		t.Fatalf("unexpected band %v", got)
	}
	if (Generator{}).Band(100, 100) != image.Rect(0, 80, 100, 100) {
		t.Fatal("expected default ratio for zero value")
	}
}

func TestDeriveAllWritesMatchingMasks(t *testing.T) {
	framesDir := t.TempDir()
	masksDir := filepath.Join(t.TempDir(), "masks")
	for _, name := range []string{"frame_00001.png", "frame_00002.png"} {
		writeFrame(t, filepath.Join(framesDir, name), 64, 32)
	}

	n, err := Generator{BandRatio: 0.25}.DeriveAll(framesDir, masksDir)
	if err != nil {
		t.Fatalf("DeriveAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 masks, got %d", n)
	}
	img := readPNG(t, filepath.Join(masksDir, "mask_00002.png"))
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("mask dimensions %v do not match frame", img.Bounds())
	}
	if gray(img.At(10, 31)) != 255 || gray(img.At(10, 24)) != 255 {
		t.Fatal("expected white subtitle band at the bottom")
	}
	if gray(img.At(10, 23)) != 0 || gray(img.At(0, 0)) != 0 {
		t.Fatal("expected black above the band")
	}

	if _, err := (Generator{}).DeriveAll(t.TempDir(), masksDir); err == nil {
		t.Fatal("expected error for empty frames dir")
	}
}

func TestMaskIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame_00001.png")
	writeFrame(t, frame, 20, 20)
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	g := Generator{BandRatio: 0.2}
	if err := g.ForFrame(frame, a); err != nil {
		t.Fatal(err)
	}
	if err := g.ForFrame(frame, b); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Fatal("expected identical masks for identical input")
	}
}

func writeFrame(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	if err := WritePNG(path, img); err != nil {
		t.Fatal(err)
	}
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func gray(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}
