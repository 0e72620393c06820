// Package aggregate merges decoded detections into frame records.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/bdougie/fieldscan/internal/metrics"
	"github.com/bdougie/fieldscan/internal/models"
)

// Mode decides how many passing detections a frame keeps.
type Mode string

const (
	// ModeMulti keeps every detection at or above the floor.
	ModeMulti Mode = "multi"
	// ModeSingle keeps only the first passing detection.
	ModeSingle Mode = "single"
)

// ParseMode accepts "multi" or "single"; empty means ModeMulti.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMulti:
		return ModeMulti, nil
	case ModeSingle:
		return ModeSingle, nil
	default:
		return "", fmt.Errorf("unknown aggregation mode %q", s)
	}
}

// Annotator draws boxes onto a copy of an image and returns the copy's path.
type Annotator interface {
	Annotate(imagePath string, boxes []models.BoundingBox) (string, error)
}

type Aggregator struct {
	mode      Mode
	floor     float64
	annotator Annotator
	logger    *slog.Logger
}

func NewAggregator(mode Mode, floor float64, annotator Annotator, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		mode:      mode,
		floor:     floor,
		annotator: annotator,
		logger:    logger,
	}
}

// Merge appends the detections that pass the floor to rec, subject to the
// mode, and renders an annotated copy of the frame when any of them has a box.
// A rendering failure is returned as *models.AnnotationRenderError with rec
// already pointing its annotated path at the original image.
func (a *Aggregator) Merge(ctx context.Context, rec *models.FrameRecord, detections []models.Detection) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, d := range detections {
		if d.Confidence < a.floor {
			continue
		}
		if a.mode == ModeSingle && len(rec.Detections) > 0 {
			break
		}
		rec.Detections = append(rec.Detections, d)
		metrics.DetectionsTotal.WithLabelValues(string(d.ObjectType)).Inc()
		a.logger.Info(d.Summary(), "frame", rec.FrameIndex, "object_type", d.ObjectType)
	}

	var boxes []models.BoundingBox
	for _, d := range rec.Detections {
		if d.Box != nil {
			boxes = append(boxes, *d.Box)
		}
	}
	if len(boxes) == 0 || a.annotator == nil {
		return nil
	}

	out, err := a.annotator.Annotate(rec.ImagePath, boxes)
	if err != nil {
		rec.AnnotatedImagePath = rec.ImagePath
		metrics.AnnotationsTotal.WithLabelValues("error").Inc()
		renderErr := &models.AnnotationRenderError{ImagePath: rec.ImagePath, Err: err}
		a.logger.Warn("failed to draw boxes", "frame", rec.FrameIndex, tint.Err(renderErr))
		return renderErr
	}

	rec.AnnotatedImagePath = out
	metrics.AnnotationsTotal.WithLabelValues("ok").Inc()
	return nil
}

// IsRecoverable reports whether err from Merge leaves rec usable.
func IsRecoverable(err error) bool {
	var renderErr *models.AnnotationRenderError
	return errors.As(err, &renderErr)
}
