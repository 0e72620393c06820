package models

import "fmt"

// SourceUnreadableError means the video or telemetry track could not be opened.
// It aborts the scan.
type SourceUnreadableError struct {
	Path string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("source unreadable '%s': %v", e.Path, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error { return e.Err }

// TrackFormatError means the telemetry track is malformed. It aborts the scan.
type TrackFormatError struct {
	Line   int
	Reason string
}

func (e *TrackFormatError) Error() string {
	return fmt.Sprintf("track format error at line %d: %s", e.Line, e.Reason)
}

// DetectionDecodeError means the detection service response for a frame could
// not be used. The frame proceeds with zero detections.
type DetectionDecodeError struct {
	Frame int
	Err   error
}

func (e *DetectionDecodeError) Error() string {
	return fmt.Sprintf("frame %d: decode detections: %v", e.Frame, e.Err)
}

func (e *DetectionDecodeError) Unwrap() error { return e.Err }

// AnnotationRenderError means a boxed copy of a frame could not be written.
// The record falls back to the unannotated image.
type AnnotationRenderError struct {
	ImagePath string
	Err       error
}

func (e *AnnotationRenderError) Error() string {
	return fmt.Sprintf("render annotation for '%s': %v", e.ImagePath, e.Err)
}

func (e *AnnotationRenderError) Unwrap() error { return e.Err }
