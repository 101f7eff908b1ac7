// Package acquire resolves a run's input frames and masks.
//
// Exactly one strategy runs per pipeline run, chosen by Resolve:
//
//   - transferred: a source locator is set. The video is downloaded, frames
//     are extracted with ffmpeg, and masks are derived per frame. Any failure
//     is final; there is no fallback to another strategy.
//   - synthesized: no locator and synthetic data requested. A procedural clip
//     and matching masks are generated.
//   - pre-staged: neither. Frames and masks already on disk are validated,
//     and masks are derived when only frames are present.
//
// When no usable frame directory results, Acquire returns an error marked
// services.ErrDataUnavailable.
package acquire
