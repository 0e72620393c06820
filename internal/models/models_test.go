package models

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectionSummary(t *testing.T) {
	report := Detection{
		ObjectType: ObjectBareSpot,
		Confidence: 0.9,
		Box:        &BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 50},
		ReportText: "exposed soil",
	}
	assert.Equal(t, "Report: exposed soil \nDetection confidence is 0.90. \nBox coordinates: [10,10,50,50].", report.Summary())

	animal := Detection{
		ObjectType: ObjectAnimal,
		Confidence: 0.875,
		ReportText: "deer",
		Extra:      map[string]string{"species": "deer", "description": "grazing"},
	}
	assert.Equal(t, "Species: deer \nDescription: grazing \nDetection confidence is 0.88. \nBox coordinates: None.", animal.Summary())
}

func TestDetectionCount(t *testing.T) {
	r := &ScanResult{Records: []FrameRecord{
		{Detections: []Detection{{}, {}}},
		{},
		{Detections: []Detection{{}}},
	}}
	assert.Equal(t, 3, r.DetectionCount())
}

func TestErrorsUnwrap(t *testing.T) {
	base := fmt.Errorf("open: %w", os.ErrNotExist)

	var err error = &SourceUnreadableError{Path: "v.mp4", Err: base}
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "source unreadable 'v.mp4': open: file does not exist", err.Error())

	err = fmt.Errorf("scan: %w", &DetectionDecodeError{Frame: 3, Err: errors.New("bad json")})
	var decodeErr *DetectionDecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, 3, decodeErr.Frame)

	err = &AnnotationRenderError{ImagePath: "f.jpg", Err: os.ErrPermission}
	assert.ErrorIs(t, err, os.ErrPermission)

	assert.Equal(t, "track format error at line 4: bad timing", (&TrackFormatError{Line: 4, Reason: "bad timing"}).Error())
}
