// Package video extracts discrete visual events from test-run recordings.
//
// The extractor samples frames at a configured stride, scores the change
// between consecutive samples, and merges above-threshold samples into
// debounced event windows. Decoding is delegated to a FrameSource; the
// default implementation shells out to ffmpeg and emits downscaled grayscale
// frames, so the extractor itself never touches a codec.
package video
