package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Locator schemes.
const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Locator is a parsed remote reference.
type Locator struct {
	Scheme string
	// Bucket and Key are set for s3 locators.
	Bucket string
	Key    string
	// Path is set for file locators.
	Path string
}

// ParseLocator parses s3://bucket/key and file:///path references.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Locator{}, fmt.Errorf("locator %q: missing scheme", raw)
	}
	switch strings.ToLower(scheme) {
	case SchemeS3:
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Locator{}, fmt.Errorf("locator %q: missing bucket", raw)
		}
		return Locator{Scheme: SchemeS3, Bucket: bucket, Key: strings.Trim(key, "/")}, nil
	case SchemeFile:
		if rest == "" {
			return Locator{}, fmt.Errorf("locator %q: missing path", raw)
		}
		return Locator{Scheme: SchemeFile, Path: filepath.Clean(filepath.FromSlash(rest))}, nil
	default:
		return Locator{}, fmt.Errorf("locator %q: unsupported scheme %q", raw, scheme)
	}
}

// Base returns the final path element of the object.
func (l Locator) Base() string {
	if l.Scheme == SchemeS3 {
		if l.Key == "" {
			return ""
		}
		return path.Base(l.Key)
	}
	return filepath.Base(l.Path)
}

// Child appends a slash-separated relative path.
func (l Locator) Child(rel string) Locator {
	rel = strings.Trim(rel, "/")
	out := l
	if l.Scheme == SchemeS3 {
		if l.Key == "" {
			out.Key = rel
		} else {
			out.Key = l.Key + "/" + rel
		}
		return out
	}
	out.Path = filepath.Join(l.Path, filepath.FromSlash(rel))
	return out
}

// String renders the locator back to URL form.
func (l Locator) String() string {
	if l.Scheme == SchemeS3 {
		if l.Key == "" {
			return "s3://" + l.Bucket
		}
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return "file://" + filepath.ToSlash(l.Path)
}

// Join appends rel to a raw locator string.
func Join(raw, rel string) (string, error) {
	loc, err := ParseLocator(raw)
	if err != nil {
		return "", err
	}
	return loc.Child(rel).String(), nil
}
