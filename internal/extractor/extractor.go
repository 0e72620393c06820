package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lmittmann/tint"

	"github.com/bdougie/fieldscan/internal/metrics"
	"github.com/bdougie/fieldscan/internal/models"
	"github.com/bdougie/fieldscan/internal/telemetry"
)

// Source is an opened video that can be positioned and decoded one frame at a time.
type Source interface {
	FrameCount() int
	FPS() float64
	SeekMillis(ms int64) error
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Frame is a decoded still that can be written to disk as a JPEG.
type Frame interface {
	Save(path string) error
	Close() error
}

// SampleResult maps each sampled second to the frame file written for it.
type SampleResult struct {
	Frames  map[int]string
	Skipped []models.SkippedFrame
}

// Seconds returns the sampled seconds in ascending order.
func (r *SampleResult) Seconds() []int {
	secs := make([]int, 0, len(r.Frames))
	for s := range r.Frames {
		secs = append(secs, s)
	}
	sort.Ints(secs)
	return secs
}

// FrameName is the file name a sampled second is stored under.
func FrameName(second int) string {
	return fmt.Sprintf("frame_%03d.jpg", second)
}

// Sampler writes one frame per whole second of video that has telemetry.
type Sampler struct {
	logger *slog.Logger
}

func NewSampler(logger *slog.Logger) *Sampler {
	return &Sampler{logger: logger}
}

// Sample walks seconds [0, frameCount/fps) of src. Seconds without telemetry are
// skipped before any decoding, and a frame file already on disk is reused as is.
// A frame that fails to decode is skipped and does not stop the walk.
func (s *Sampler) Sample(ctx context.Context, src Source, path string, track telemetry.Track, outDir string) (*SampleResult, error) {
	fps := src.FPS()
	if fps <= 0 {
		return nil, &models.SourceUnreadableError{Path: path, Err: fmt.Errorf("invalid frame rate %v", fps)}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
	}

	duration := int(float64(src.FrameCount()) / fps)
	result := &SampleResult{Frames: map[int]string{}}
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("sample").Observe(time.Since(start).Seconds())
	}()

	s.logger.Info("sampling frames", "video", path, "seconds", duration, "fps", fps, "output", outDir)

	for sec := 0; sec < duration; sec++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if _, ok := track[sec]; !ok {
			result.skip(sec, "no telemetry")
			continue
		}

		framePath := filepath.Join(outDir, FrameName(sec))
		if _, err := os.Stat(framePath); err == nil {
			s.logger.Debug("reusing existing frame", "second", sec, "path", framePath)
			result.Frames[sec] = framePath
			metrics.FramesSampledTotal.Inc()
			continue
		}

		if err := s.writeFrame(ctx, src, int64(sec)*1000, framePath); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("frame decode failed", "second", sec, tint.Err(err))
			result.skip(sec, "decode failed")
			continue
		}

		result.Frames[sec] = framePath
		metrics.FramesSampledTotal.Inc()
	}

	s.logger.Info("sampling complete", "frames", len(result.Frames), "skipped", len(result.Skipped))
	return result, nil
}

func (s *Sampler) writeFrame(ctx context.Context, src Source, ms int64, framePath string) error {
	if err := src.SeekMillis(ms); err != nil {
		return fmt.Errorf("seek to %dms: %w", ms, err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		return err
	}
	defer frame.Close()

	if err := frame.Save(framePath); err != nil {
		// A partial file would be reused by the next run.
		_ = os.Remove(framePath)
		return fmt.Errorf("save frame: %w", err)
	}
	return nil
}

func (r *SampleResult) skip(sec int, reason string) {
	r.Skipped = append(r.Skipped, models.SkippedFrame{Second: sec, Stage: "sample", Reason: reason})
	metrics.FramesSkippedTotal.WithLabelValues("sample").Inc()
}

// ErrNoFrame is returned by a Source when nothing could be decoded at the current position.
var ErrNoFrame = errors.New("no frame decoded")
