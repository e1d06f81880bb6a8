package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Decoded frame geometry. Scene scoring only needs coarse structure; a small
// fixed raster keeps the pipe cheap and makes the change score independent of
// the recording's native resolution.
const (
	decodeWidth  = 160
	decodeHeight = 90
)

// ffmpegSource decodes a recording through an ffmpeg child process, reading
// 8-bit grayscale frames from its stdout pipe. Stream metadata comes from a
// one-shot ffprobe call before decoding starts.
type ffmpegSource struct {
	path     string
	fps      float64
	duration time.Duration

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
	index  int
}

// ffprobeOutput mirrors the JSON emitted by ffprobe -of json.
type ffprobeOutput struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// NewFFmpegSource opens a recording for frame-by-frame grayscale decoding.
// The ffmpeg and ffprobe binaries are resolved from the given paths, or from
// PATH when empty. Probe or spawn failures surface as MediaReadError.
func NewFFmpegSource(ctx context.Context, path, ffmpegPath, ffprobePath string) (FrameSource, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	fps, duration, err := probe(ctx, ffprobePath, path)
	if err != nil {
		return nil, &MediaReadError{Source: path, Err: err}
	}

	src := &ffmpegSource{path: path, fps: fps, duration: duration}

	// gray pix_fmt plus a fixed scale gives exactly decodeWidth*decodeHeight
	// bytes per frame on the pipe.
	src.cmd = exec.CommandContext(ctx, ffmpegPath,
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-vf", fmt.Sprintf("scale=%d:%d", decodeWidth, decodeHeight),
		"-",
	)
	src.cmd.Stderr = &src.stderr

	stdout, err := src.cmd.StdoutPipe()
	if err != nil {
		return nil, &MediaReadError{Source: path, Err: err}
	}
	src.stdout = stdout
	src.reader = bufio.NewReaderSize(stdout, decodeWidth*decodeHeight*4)

	if err := src.cmd.Start(); err != nil {
		return nil, &MediaReadError{Source: path, Err: fmt.Errorf("starting ffmpeg: %w", err)}
	}
	return src, nil
}

// probe asks ffprobe for the frame rate and container duration.
func probe(ctx context.Context, ffprobePath, path string) (fps float64, duration time.Duration, err error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, 0, fmt.Errorf("ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video stream in %s", path)
	}

	fps, err = parseFrameRate(parsed.Streams[0].AvgFrameRate)
	if err != nil {
		return 0, 0, err
	}

	seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("container duration %q: %w", parsed.Format.Duration, err)
	}
	return fps, time.Duration(seconds * float64(time.Second)), nil
}

// parseFrameRate converts ffprobe's rational frame rate ("30000/1001") to a
// float.
func parseFrameRate(rate string) (float64, error) {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		return strconv.ParseFloat(rate, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", rate, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("frame rate %q: invalid denominator", rate)
	}
	if n/d <= 0 {
		return 0, fmt.Errorf("frame rate %q: non-positive", rate)
	}
	return n / d, nil
}

func (s *ffmpegSource) Name() string { return filepath.Base(s.path) }

func (s *ffmpegSource) FPS() float64 { return s.fps }

func (s *ffmpegSource) Duration() time.Duration { return s.duration }

// Next reads one frame from the decode pipe. A short read mid-frame means the
// decoder died; the stderr tail is folded into the error.
func (s *ffmpegSource) Next() (Frame, error) {
	pixels := make([]byte, decodeWidth*decodeHeight)
	if _, err := io.ReadFull(s.reader, pixels); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, &MediaReadError{
			Source: s.path,
			Err:    fmt.Errorf("decode stream truncated: %w (ffmpeg: %s)", err, strings.TrimSpace(s.stderr.String())),
		}
	}

	f := Frame{Index: s.index, Width: decodeWidth, Height: decodeHeight, Pixels: pixels}
	s.index++
	return f, nil
}

// Close drains and reaps the ffmpeg process. A non-zero exit after a complete
// read is reported; callers that already hit a MediaReadError may ignore it.
func (s *ffmpegSource) Close() error {
	s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		return &MediaReadError{
			Source: s.path,
			Err:    fmt.Errorf("ffmpeg exit: %w (%s)", err, strings.TrimSpace(s.stderr.String())),
		}
	}
	return nil
}
