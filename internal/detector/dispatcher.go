package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdougie/fieldscan/internal/metrics"
	"github.com/bdougie/fieldscan/internal/models"
)

// Dispatcher sends frames to a Service and decodes what it reports.
type Dispatcher struct {
	registry *Registry
	service  Service
	logger   *slog.Logger
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. A zero timeout leaves the detection
// call bounded only by ctx.
func NewDispatcher(registry *Registry, service Service, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		service:  service,
		logger:   logger,
		timeout:  timeout,
	}
}

// Matches reports whether lookFor selects at least one detector.
func (d *Dispatcher) Matches(lookFor string) bool {
	return len(d.registry.Resolve(lookFor)) > 0
}

// Dispatch makes exactly one detection call for rec covering every detector
// lookFor matches. No match returns nil without calling the service. A call
// is decoded only by a detector offered in this request. Any failure to
// obtain or decode the response is a *models.DetectionDecodeError.
func (d *Dispatcher) Dispatch(ctx context.Context, rec models.FrameRecord, lookFor string) ([]models.Detection, error) {
	specs := d.registry.Resolve(lookFor)
	if len(specs) == 0 {
		return nil, nil
	}

	image, err := LoadImage(rec.ImagePath)
	if err != nil {
		return nil, d.fail(rec.FrameIndex, "image", err)
	}
	req := BuildRequest(specs, image)

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := d.service.Detect(callCtx, req)
	metrics.DetectDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, d.fail(rec.FrameIndex, "service", err)
	}
	if resp == nil {
		return nil, d.fail(rec.FrameIndex, "service", fmt.Errorf("empty response"))
	}

	var detections []models.Detection
	for _, call := range resp.Calls {
		spec, ok := lookup(specs, call.Name)
		if !ok {
			return nil, d.fail(rec.FrameIndex, "decode", fmt.Errorf("function %q was not offered", call.Name))
		}

		det, err := spec.Parse(call.Args)
		if err != nil {
			return nil, d.fail(rec.FrameIndex, "decode", fmt.Errorf("%s: %w", call.Name, err))
		}
		if det == nil {
			d.logger.Debug("detection below confidence floor", "frame", rec.FrameIndex, "function", call.Name)
			continue
		}
		detections = append(detections, *det)
	}

	metrics.DetectRequestsTotal.WithLabelValues("ok").Inc()
	d.logger.Debug("frame dispatched", "frame", rec.FrameIndex, "calls", len(resp.Calls), "kept", len(detections))
	return detections, nil
}

func lookup(specs []Spec, name string) (Spec, bool) {
	for _, s := range specs {
		if s.Schema.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

func (d *Dispatcher) fail(frame int, outcome string, err error) error {
	metrics.DetectRequestsTotal.WithLabelValues(outcome + "_error").Inc()
	return &models.DetectionDecodeError{Frame: frame, Err: err}
}
