package video

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// videoExtensions lists the recording formats discovered inside a directory
// argument.
var videoExtensions = map[string]bool{
	".webm": true,
	".mp4":  true,
	".avi":  true,
	".mov":  true,
}

// MediaReadError reports an unreadable or corrupt video source. Fatal to
// extraction for that source.
type MediaReadError struct {
	Source string
	Err    error
}

func (e *MediaReadError) Error() string {
	return fmt.Sprintf("media read error: %s: %v", e.Source, e.Err)
}

func (e *MediaReadError) Unwrap() error {
	return e.Err
}

// Frame is one decoded grayscale frame. Pixels holds Width*Height luma bytes.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pixels []byte
}

// FrameSource yields the decoded frames of one recording in order.
//
// Next returns io.EOF after the last frame. Implementations are not safe for
// concurrent use; the extractor reads each source from a single goroutine.
type FrameSource interface {
	// Name identifies the source, usually the file base name.
	Name() string
	// FPS is the source frame rate.
	FPS() float64
	// Duration is the total source length, known before decoding.
	Duration() time.Duration
	Next() (Frame, error)
	Close() error
}

// DiscoverSources expands a path argument into the ordered list of video
// files to analyze. A file argument is returned as-is; a directory yields the
// contained video files in lexical order. The order fixes the concatenation
// offsets, so it is the caller's contract, never inferred from content.
func DiscoverSources(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &MediaReadError{Source: path, Err: err}
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &MediaReadError{Source: path, Err: err}
	}

	var sources []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			sources = append(sources, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(sources)

	if len(sources) == 0 {
		return nil, &MediaReadError{Source: path, Err: fmt.Errorf("no video files in directory")}
	}
	return sources, nil
}

// sliceSource serves pre-built frames from memory. Test seam; also the shape
// any future non-ffmpeg decoder plugs into.
type sliceSource struct {
	name   string
	fps    float64
	frames []Frame
	pos    int
}

// NewSliceSource builds an in-memory FrameSource from raw grayscale frames.
func NewSliceSource(name string, fps float64, width, height int, frames [][]byte) FrameSource {
	built := make([]Frame, len(frames))
	for i, px := range frames {
		built[i] = Frame{Index: i, Width: width, Height: height, Pixels: px}
	}
	return &sliceSource{name: name, fps: fps, frames: built}
}

func (s *sliceSource) Name() string { return s.name }

func (s *sliceSource) FPS() float64 { return s.fps }

func (s *sliceSource) Duration() time.Duration {
	if s.fps <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.frames)) / s.fps * float64(time.Second))
}

func (s *sliceSource) Next() (Frame, error) {
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }
