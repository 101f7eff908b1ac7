// Package frames handles ordered image sequences on disk: listing them in
// temporal order, extracting them from a video with ffmpeg, restaging them as
// a contiguous frame_%05d.png run, and muxing a sequence back into a
// container.
package frames
