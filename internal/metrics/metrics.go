package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscan_scans_total",
		Help: "Total number of scans run, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldscan_stage_duration_seconds",
		Help:    "Duration of each scan stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldscan_frames_sampled_total",
		Help: "Total number of frames written or reused by the sampler",
	})

	FramesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscan_frames_skipped_total",
		Help: "Total number of seconds skipped, by stage",
	}, []string{"stage"})

	DetectRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscan_detect_requests_total",
		Help: "Total number of detection service calls, by outcome",
	}, []string{"outcome"})

	DetectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldscan_detect_duration_seconds",
		Help:    "Latency of detection service calls",
		Buckets: prometheus.DefBuckets,
	})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscan_detections_total",
		Help: "Total number of retained detections, by object type",
	}, []string{"object_type"})

	AnnotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldscan_annotations_total",
		Help: "Total number of boxed images rendered, by outcome",
	}, []string{"outcome"})
)
