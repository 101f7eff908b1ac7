package frames

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"subclean/internal/fileutil"
)

// Pattern is the printf-style name used for extracted and restaged frames.
const Pattern = "frame_%05d.png"

// Name returns the frame file name for a 1-based index.
func Name(index int) string {
	return fmt.Sprintf(Pattern, index)
}

var imageExts = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

// List returns image files in dir in temporal order. Names are compared with
// digit runs treated as numbers so "2.png" sorts before "10.png".
func List(dir string) ([]string, error) {
	names, err := fileutil.ListFiles(dir, imageExts...)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(names, compareNatural)
	return names, nil
}

// Count returns the number of image files in dir, or 0 when it cannot be read.
func Count(dir string) int {
	names, err := List(dir)
	if err != nil {
		return 0
	}
	return len(names)
}

// Restage copies the images in src, in order, into dst as a contiguous
// frame_%05d.png sequence starting at 1. dst is emptied first. Non-PNG inputs
// are rejected because the muxer reads a single pattern.
func Restage(src, dst string) (int, error) {
	names, err := List(src)
	if err != nil {
		return 0, fmt.Errorf("list frames: %w", err)
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("no frames in %s", src)
	}
	if err := fileutil.ResetDir(dst); err != nil {
		return 0, fmt.Errorf("reset staging dir: %w", err)
	}
	for i, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".png") {
			return 0, fmt.Errorf("frame %s is not a png", name)
		}
		if err := fileutil.CopyFile(filepath.Join(src, name), filepath.Join(dst, Name(i+1))); err != nil {
			return 0, fmt.Errorf("stage frame %s: %w", name, err)
		}
	}
	return len(names), nil
}

func compareNatural(a, b string) int {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			da, restA := splitDigits(a)
			db, restB := splitDigits(b)
			na := strings.TrimLeft(da, "0")
			nb := strings.TrimLeft(db, "0")
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			return int(ra) - int(rb)
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
