package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"github.com/bdougie/fieldscan/internal/aggregate"
	"github.com/bdougie/fieldscan/internal/correlate"
	"github.com/bdougie/fieldscan/internal/detector"
	"github.com/bdougie/fieldscan/internal/extractor"
	"github.com/bdougie/fieldscan/internal/metrics"
	"github.com/bdougie/fieldscan/internal/models"
	"github.com/bdougie/fieldscan/internal/storage"
	"github.com/bdougie/fieldscan/internal/telemetry"
)

// State is the stage a scan is in.
type State string

const (
	StateIdle        State = "idle"
	StateSampling    State = "sampling"
	StateCorrelating State = "correlating"
	StateDispatching State = "dispatching"
	StateAggregating State = "aggregating"
	StateComplete    State = "complete"
)

// Progress is reported on every state change. Frame and Total are set while
// dispatching and aggregating.
type Progress struct {
	State State
	Frame int
	Done  int
	Total int
}

// OpenFunc opens a video for sampling.
type OpenFunc func(ctx context.Context, videoPath string) (extractor.Source, error)

// ScanRequest names the inputs of a scan.
type ScanRequest struct {
	VideoPath string
	TrackPath string
	OutputDir string
	LookFor   string
}

// Processor runs scans one frame at a time.
type Processor struct {
	open       OpenFunc
	sampler    *extractor.Sampler
	dispatcher *detector.Dispatcher
	aggregator *aggregate.Aggregator
	storage    storage.Storage
	logger     *slog.Logger

	// OnProgress, when set, is called synchronously on every state change.
	OnProgress func(Progress)
}

func NewProcessor(open OpenFunc, dispatcher *detector.Dispatcher, aggregator *aggregate.Aggregator, store storage.Storage, logger *slog.Logger) *Processor {
	return &Processor{
		open:       open,
		sampler:    extractor.NewSampler(logger),
		dispatcher: dispatcher,
		aggregator: aggregator,
		storage:    store,
		logger:     logger,
	}
}

// RunScan samples the video, joins frames to telemetry and runs detection on
// every frame in order.
//
// An unreadable video or track and a malformed track are fatal and return no
// records. Per-frame failures are logged, listed in Skipped and do not stop
// the scan. If ctx is cancelled after frame i, the result holds the records
// for the frames before i along with ctx.Err(). The storage is flushed in
// every case once sampling has started.
func (p *Processor) RunScan(ctx context.Context, req ScanRequest) (*models.ScanResult, error) {
	result := &models.ScanResult{
		ID:        uuid.New(),
		VideoPath: req.VideoPath,
		TrackPath: req.TrackPath,
		LookFor:   req.LookFor,
		StartedAt: time.Now(),
	}
	p.emit(Progress{State: StateIdle})

	track, err := telemetry.ParseFile(req.TrackPath)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	src, err := p.open(ctx, req.VideoPath)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		var unreadable *models.SourceUnreadableError
		if !errors.As(err, &unreadable) {
			err = &models.SourceUnreadableError{Path: req.VideoPath, Err: err}
		}
		return nil, err
	}
	defer src.Close()

	if err := p.storage.Begin(ctx, result); err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to start storage: %w", err)
	}

	err = p.scan(ctx, src, track, req, result)
	result.FinishedAt = time.Now()

	if flushErr := p.storage.Flush(context.WithoutCancel(ctx), result); flushErr != nil {
		p.logger.Error("failed to flush final results", tint.Err(flushErr))
		if err == nil {
			err = fmt.Errorf("failed to flush final results: %w", flushErr)
		}
	}

	switch {
	case err == nil:
		metrics.ScansTotal.WithLabelValues("complete").Inc()
		p.emit(Progress{State: StateComplete, Done: len(result.Records), Total: len(result.Records)})
	case ctx.Err() != nil:
		metrics.ScansTotal.WithLabelValues("cancelled").Inc()
	default:
		metrics.ScansTotal.WithLabelValues("failed").Inc()
	}

	var unreadable *models.SourceUnreadableError
	if errors.As(err, &unreadable) {
		return nil, err
	}
	return result, err
}

func (p *Processor) scan(ctx context.Context, src extractor.Source, track telemetry.Track, req ScanRequest, result *models.ScanResult) error {
	p.emit(Progress{State: StateSampling})
	sample, err := p.sampler.Sample(ctx, src, req.VideoPath, track, req.OutputDir)
	if sample != nil {
		result.Skipped = append(result.Skipped, sample.Skipped...)
	}
	if err != nil {
		return err
	}

	p.emit(Progress{State: StateCorrelating})
	records := correlate.Join(sample.Frames, track)
	p.logger.Info("frames correlated", "records", len(records))

	if !p.dispatcher.Matches(req.LookFor) {
		p.logger.Warn("no detector matches request, frames get no detections", "look_for", req.LookFor)
	}

	dispatchStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(dispatchStart).Seconds())
	}()

	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := records[i]

		p.emit(Progress{State: StateDispatching, Frame: rec.FrameIndex, Done: i, Total: len(records)})
		detections, err := p.dispatcher.Dispatch(ctx, rec, req.LookFor)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.logger.Warn("detection failed, continuing without detections", "frame", rec.FrameIndex, tint.Err(err))
			result.Skipped = append(result.Skipped, models.SkippedFrame{Second: rec.FrameIndex, Stage: "dispatch", Reason: err.Error()})
			metrics.FramesSkippedTotal.WithLabelValues("dispatch").Inc()
			detections = nil
		} else if !p.dispatcher.Matches(req.LookFor) {
			result.Skipped = append(result.Skipped, models.SkippedFrame{Second: rec.FrameIndex, Stage: "dispatch", Reason: "no detector matches request"})
			metrics.FramesSkippedTotal.WithLabelValues("dispatch").Inc()
		}

		p.emit(Progress{State: StateAggregating, Frame: rec.FrameIndex, Done: i, Total: len(records)})
		if err := p.aggregator.Merge(ctx, &rec, detections); err != nil && !aggregate.IsRecoverable(err) {
			return err
		}

		if err := p.storage.AddRecord(ctx, rec); err != nil {
			return fmt.Errorf("failed to store frame %d: %w", rec.FrameIndex, err)
		}
		result.Records = append(result.Records, rec)
	}

	return nil
}

func (p *Processor) emit(progress Progress) {
	if p.OnProgress != nil {
		p.OnProgress(progress)
	}
}
