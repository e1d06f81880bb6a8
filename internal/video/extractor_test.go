package video

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
	"github.com/fyrsmithlabs/vidaudit/internal/config"
)

const (
	testWidth  = 4
	testHeight = 4
)

// patternA is half dark, half bright. Its inversion moves every pixel, which
// scores 200 on the mean-absolute-difference scale.
func patternA() []byte {
	px := make([]byte, testWidth*testHeight)
	for i := 8; i < 16; i++ {
		px[i] = 200
	}
	return px
}

func patternInverted() []byte {
	px := make([]byte, testWidth*testHeight)
	for i := 0; i < 8; i++ {
		px[i] = 200
	}
	return px
}

// patternShifted is patternA plus a uniform brightness offset. The
// mean-subtracted signature is identical to patternA's.
func patternShifted() []byte {
	px := patternA()
	for i := range px {
		px[i] += 20
	}
	return px
}

// patternTwoFlipped flips two dark pixels of patternA, scoring ~43.75:
// above the threshold of 30 but under the 2x scene-change grade.
func patternTwoFlipped() []byte {
	px := patternA()
	px[0] = 200
	px[1] = 200
	return px
}

func repeat(frame []byte, n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = frame
	}
	return frames
}

func testConfig() config.VideoConfig {
	return config.VideoConfig{
		FrameSkip:            1,
		SceneChangeThreshold: 30,
		DebounceGap:          config.Duration(750 * time.Millisecond),
		MaxParallelSources:   2,
	}
}

// newTestExtractor wires the extractor to in-memory sources keyed by path.
func newTestExtractor(cfg config.VideoConfig, sources map[string]func() FrameSource) *Extractor {
	e := NewExtractor(cfg, zap.NewNop())
	e.openSource = func(_ context.Context, path string) (FrameSource, error) {
		open, ok := sources[path]
		if !ok {
			return nil, &MediaReadError{Source: path, Err: os.ErrNotExist}
		}
		return open(), nil
	}
	return e
}

func TestExtractStaticVideoYieldsZeroEvents(t *testing.T) {
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"static.mp4": func() FrameSource {
			return NewSliceSource("static.mp4", 10, testWidth, testHeight, repeat(patternA(), 30))
		},
	})

	events, err := e.Extract(context.Background(), []string{"static.mp4"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExtractBrightnessFlickerIgnored(t *testing.T) {
	frames := [][]byte{patternA(), patternShifted(), patternA(), patternShifted()}
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"flicker.mp4": func() FrameSource {
			return NewSliceSource("flicker.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"flicker.mp4"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExtractSingleTransition(t *testing.T) {
	// A stable, inversion at frame 5, stable again.
	frames := append(repeat(patternA(), 5), repeat(patternInverted(), 5)...)
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"run.mp4": func() FrameSource {
			return NewSliceSource("run.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"run.mp4"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, audit.EventSceneChange, ev.Kind)
	assert.InDelta(t, 200, ev.Magnitude, 0.001)
	// Hit at 0.5s with a 0.1s sample interval: window [0.5, 0.6), midpoint 0.55.
	assert.InDelta(t, 0.5, ev.WindowStart.Seconds(), 0.001)
	assert.InDelta(t, 0.6, ev.WindowEnd.Seconds(), 0.001)
	assert.InDelta(t, 0.55, ev.Timestamp.Seconds(), 0.001)
	assert.Equal(t, "run.mp4", ev.Source)
}

func TestExtractClassifiesModerateChangeAsUITransition(t *testing.T) {
	frames := append(repeat(patternA(), 3), repeat(patternTwoFlipped(), 3)...)
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"ui.mp4": func() FrameSource {
			return NewSliceSource("ui.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"ui.mp4"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventUITransition, events[0].Kind)
	assert.InDelta(t, 43.75, events[0].Magnitude, 0.01)
}

func TestExtractDebounceMergesFastTransition(t *testing.T) {
	// Inversion and immediate reversal: two consecutive above-threshold
	// samples 0.1s apart collapse into one window.
	frames := append(repeat(patternA(), 2), patternInverted())
	frames = append(frames, repeat(patternA(), 2)...)
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"fast.mp4": func() FrameSource {
			return NewSliceSource("fast.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"fast.mp4"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, 0.2, events[0].WindowStart.Seconds(), 0.001)
	assert.InDelta(t, 0.4, events[0].WindowEnd.Seconds(), 0.001)
	assert.InDelta(t, 200, events[0].Magnitude, 0.001)
}

func TestExtractSeparatedChangesStayDistinct(t *testing.T) {
	// Change at 1.0s, stable, change back at 3.0s: the 2s gap exceeds the
	// 750ms debounce, so two events come out.
	frames := repeat(patternA(), 10)
	frames = append(frames, repeat(patternInverted(), 20)...)
	frames = append(frames, repeat(patternA(), 5)...)
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"two.mp4": func() FrameSource {
			return NewSliceSource("two.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"two.mp4"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.InDelta(t, 1.05, events[0].Timestamp.Seconds(), 0.001)
	assert.InDelta(t, 3.05, events[1].Timestamp.Seconds(), 0.001)
	assert.True(t, events[0].Timestamp < events[1].Timestamp)
}

func TestExtractFrameSkipSkipsBlips(t *testing.T) {
	// A single-frame blip at an unsampled index is invisible at stride 2.
	cfg := testConfig()
	cfg.FrameSkip = 2
	frames := [][]byte{patternA(), patternInverted(), patternA(), patternA(), patternA()}
	e := newTestExtractor(cfg, map[string]func() FrameSource{
		"blip.mp4": func() FrameSource {
			return NewSliceSource("blip.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"blip.mp4"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExtractMultiSourceOffsets(t *testing.T) {
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"a.mp4": func() FrameSource {
			// 10 frames at 10fps: one second of nothing.
			return NewSliceSource("a.mp4", 10, testWidth, testHeight, repeat(patternA(), 10))
		},
		"b.mp4": func() FrameSource {
			frames := append(repeat(patternA(), 5), repeat(patternInverted(), 5)...)
			return NewSliceSource("b.mp4", 10, testWidth, testHeight, frames)
		},
	})

	events, err := e.Extract(context.Background(), []string{"a.mp4", "b.mp4"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	// Local midpoint 0.55s, shifted by a.mp4's one-second duration.
	assert.InDelta(t, 1.55, events[0].Timestamp.Seconds(), 0.001)
	assert.Equal(t, "b.mp4", events[0].Source)
}

func TestExtractFailsOnUnreadableSource(t *testing.T) {
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{})

	_, err := e.Extract(context.Background(), []string{"missing.mp4"})
	require.Error(t, err)
	var mediaErr *MediaReadError
	assert.ErrorAs(t, err, &mediaErr)
}

func TestExtractRejectsZeroFPS(t *testing.T) {
	e := newTestExtractor(testConfig(), map[string]func() FrameSource{
		"bad.mp4": func() FrameSource {
			return NewSliceSource("bad.mp4", 0, testWidth, testHeight, repeat(patternA(), 3))
		},
	})

	_, err := e.Extract(context.Background(), []string{"bad.mp4"})
	require.Error(t, err)
	var mediaErr *MediaReadError
	assert.ErrorAs(t, err, &mediaErr)
}

func TestExtractNoSources(t *testing.T) {
	e := newTestExtractor(testConfig(), nil)
	_, err := e.Extract(context.Background(), nil)
	require.Error(t, err)
}

func TestDiscoverSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.webm", "a.mp4", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	sources, err := DiscoverSources(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.webm")}, sources)

	single, err := DiscoverSources(filepath.Join(dir, "a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mp4")}, single)

	_, err = DiscoverSources(filepath.Join(dir, "missing"))
	var mediaErr *MediaReadError
	assert.ErrorAs(t, err, &mediaErr)

	empty := t.TempDir()
	_, err = DiscoverSources(empty)
	assert.ErrorAs(t, err, &mediaErr)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		rate    string
		want    float64
		wantErr bool
	}{
		{rate: "30/1", want: 30},
		{rate: "30000/1001", want: 29.97002997},
		{rate: "25", want: 25},
		{rate: "0/0", wantErr: true},
		{rate: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rate, func(t *testing.T) {
			got, err := parseFrameRate(tt.rate)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}
