package video

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
	"github.com/fyrsmithlabs/vidaudit/internal/config"
)

// Extractor turns recordings into duration-ordered VideoEvent sequences.
type Extractor struct {
	cfg     config.VideoConfig
	logger  *zap.Logger
	metrics *Metrics

	// openSource is swapped for an in-memory source in tests.
	openSource func(ctx context.Context, path string) (FrameSource, error)
}

// NewExtractor creates an extractor backed by ffmpeg decoding.
func NewExtractor(cfg config.VideoConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		cfg:     cfg,
		logger:  logger,
		metrics: NewMetrics(logger),
		openSource: func(ctx context.Context, path string) (FrameSource, error) {
			return NewFFmpegSource(ctx, path, cfg.FFmpegPath, cfg.FFprobePath)
		},
	}
}

// Extract analyzes the given recordings in caller-provided order and returns
// one merged, timestamp-sorted event sequence. Timestamps of the Nth source
// are offset by the cumulative duration of the sources before it, so the
// result reads as a single linear timeline.
//
// Sources are extracted in parallel up to MaxParallelSources; scoring within
// one source stays sequential because each sample is compared against its
// predecessor. The first MediaReadError aborts the pass.
func (e *Extractor) Extract(ctx context.Context, paths []string) ([]audit.VideoEvent, error) {
	if len(paths) == 0 {
		return nil, &MediaReadError{Source: "(none)", Err: fmt.Errorf("no video sources given")}
	}

	// Open everything up front: concatenation offsets need every duration
	// before any extraction work starts.
	sources := make([]FrameSource, len(paths))
	for i, path := range paths {
		src, err := e.openSource(ctx, path)
		if err != nil {
			closeAll(sources[:i])
			return nil, err
		}
		sources[i] = src
	}

	offsets := make([]time.Duration, len(sources))
	var cumulative time.Duration
	for i, src := range sources {
		offsets[i] = cumulative
		cumulative += src.Duration()
	}

	perSource := make([][]audit.VideoEvent, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallelSources)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			defer src.Close()

			start := time.Now()
			events, sampled, err := e.extractSource(gctx, src)
			e.metrics.RecordExtraction(gctx, src.Name(), time.Since(start), sampled, len(events), err)
			if err != nil {
				return err
			}

			for j := range events {
				events[j].Timestamp += offsets[i]
				events[j].WindowStart += offsets[i]
				events[j].WindowEnd += offsets[i]
			}
			perSource[i] = events

			e.logger.Info("extracted events",
				zap.String("source", src.Name()),
				zap.Int("sampled_frames", sampled),
				zap.Int("events", len(events)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []audit.VideoEvent
	for _, events := range perSource {
		merged = append(merged, events...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged, nil
}

// eventWindow accumulates consecutive above-threshold samples.
type eventWindow struct {
	start   time.Duration
	end     time.Duration
	lastHit time.Duration
	peak    float64
}

// extractSource runs the sampling loop over one source. Returned timestamps
// are local to the source; the caller applies concatenation offsets.
func (e *Extractor) extractSource(ctx context.Context, src FrameSource) ([]audit.VideoEvent, int, error) {
	fps := src.FPS()
	if fps <= 0 {
		return nil, 0, &MediaReadError{Source: src.Name(), Err: fmt.Errorf("non-positive frame rate %g", fps)}
	}

	stride := e.cfg.FrameSkip
	sampleInterval := time.Duration(float64(stride) / fps * float64(time.Second))
	debounce := e.cfg.DebounceGap.Duration()

	var (
		events  []audit.VideoEvent
		win     *eventWindow
		prev    []float32
		sampled int
	)

	flush := func() {
		if win == nil {
			return
		}
		events = append(events, e.windowEvent(src.Name(), *win))
		win = nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, sampled, ctx.Err()
		default:
		}

		frame, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, sampled, err
		}

		// Every frame is read so the stride accounting stays exact; only
		// every Nth is scored.
		if frame.Index%stride != 0 {
			continue
		}
		sampled++

		ts := time.Duration(float64(frame.Index) / fps * float64(time.Second))
		sig := signature(frame.Pixels)
		if prev == nil {
			prev = sig
			continue
		}

		score := changeScore(prev, sig)
		prev = sig
		if score <= e.cfg.SceneChangeThreshold {
			continue
		}

		switch {
		case win == nil:
			win = &eventWindow{start: ts, end: ts + sampleInterval, lastHit: ts, peak: score}
		case ts-win.lastHit <= debounce:
			// Fast multi-frame transition: extend instead of double-reporting.
			win.end = ts + sampleInterval
			win.lastHit = ts
			if score > win.peak {
				win.peak = score
			}
		default:
			flush()
			win = &eventWindow{start: ts, end: ts + sampleInterval, lastHit: ts, peak: score}
		}
	}
	flush()

	return events, sampled, nil
}

// windowEvent converts a closed window into the emitted event: timestamp at
// the window midpoint, magnitude at the window peak.
func (e *Extractor) windowEvent(source string, win eventWindow) audit.VideoEvent {
	return audit.VideoEvent{
		Timestamp:   (win.start + win.end) / 2,
		Kind:        classifyKind(win.peak, e.cfg.SceneChangeThreshold),
		Magnitude:   win.peak,
		WindowStart: win.start,
		WindowEnd:   win.end,
		Source:      source,
	}
}

// classifyKind grades a window by how far its peak clears the threshold. A
// full scene change moves most of the raster; a UI transition (dialog,
// dropdown, spinner) moves less.
func classifyKind(peak, threshold float64) audit.EventKind {
	switch {
	case peak >= 2*threshold:
		return audit.EventSceneChange
	case peak > threshold:
		return audit.EventUITransition
	default:
		return audit.EventUnclassified
	}
}

// signature converts a frame to its mean-subtracted luma values. Subtracting
// the frame mean cancels global lighting flicker: a uniform brightness shift
// produces a zero change score.
func signature(pixels []byte) []float32 {
	var sum float64
	for _, p := range pixels {
		sum += float64(p)
	}
	mean := float32(sum / float64(len(pixels)))

	sig := make([]float32, len(pixels))
	for i, p := range pixels {
		sig[i] = float32(p) - mean
	}
	return sig
}

// changeScore is the mean absolute difference between two signatures, on the
// same 0-255 scale the scene_change_threshold is configured in.
func changeScore(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(n)
}

func closeAll(sources []FrameSource) {
	for _, src := range sources {
		if src != nil {
			src.Close()
		}
	}
}
