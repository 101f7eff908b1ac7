// Package ffprobe wraps the ffprobe CLI and decodes its JSON report.
//
// Acquisition uses it to read a source video's frame rate before extraction
// and publishing uses it to verify the reassembled container's frame count.
package ffprobe
