package detector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/fieldscan/internal/models"
)

type fakeService struct {
	requests []Request
	resp     *Response
	err      error
	delay    time.Duration
}

func (f *fakeService) Detect(ctx context.Context, req Request) (*Response, error) {
	f.requests = append(f.requests, req)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frameRecord(t *testing.T) models.FrameRecord {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame_000.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0}, 0644))
	return models.FrameRecord{FrameIndex: 0, ImagePath: path}
}

func bareCall(confidence any) Call {
	return Call{Name: "report_bare_spot", Args: map[string]any{
		"report":        "exposed soil",
		"confidence":    confidence,
		"box_parameter": []any{float64(10), float64(20), float64(110), float64(220)},
	}}
}

func TestDispatchCombinesMatchedDetectors(t *testing.T) {
	svc := &fakeService{resp: &Response{}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	_, err := d.Dispatch(context.Background(), frameRecord(t), "bare spot, animal")
	require.NoError(t, err)

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	require.Len(t, req.Schemas, 2)
	assert.Equal(t, "report_bare_spot", req.Schemas[0].Name)
	assert.Equal(t, "report_animal", req.Schemas[1].Name)
	assert.Contains(t, req.Prompt, "**Bare spots**")
	assert.Contains(t, req.Prompt, "**Animals**")
	assert.NotContains(t, req.Prompt, "**Weeds**")
	assert.Contains(t, req.Prompt, "tight bounding box")
	assert.Equal(t, "image/jpeg", req.Image.MIMEType)
}

func TestDispatchNoMatchSkipsService(t *testing.T) {
	svc := &fakeService{resp: &Response{}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	dets, err := d.Dispatch(context.Background(), frameRecord(t), "tractors")
	require.NoError(t, err)
	assert.Nil(t, dets)
	assert.Empty(t, svc.requests)
}

func TestDispatchConfidenceFloor(t *testing.T) {
	svc := &fakeService{resp: &Response{Calls: []Call{bareCall(0.84), bareCall(0.85), bareCall(0.97)}}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	dets, err := d.Dispatch(context.Background(), frameRecord(t), "bare")
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, 0.85, dets[0].Confidence)
	assert.Equal(t, 0.97, dets[1].Confidence)
	assert.Equal(t, &models.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 220}, dets[0].Box)
	assert.Equal(t, models.ObjectBareSpot, dets[0].ObjectType)
}

func TestDispatchAnimal(t *testing.T) {
	svc := &fakeService{resp: &Response{Calls: []Call{{Name: "report_animal", Args: map[string]any{
		"species":       "deer",
		"description":   "adult grazing",
		"confidence":    0.9,
		"box_parameter": nil,
	}}}}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	dets, err := d.Dispatch(context.Background(), frameRecord(t), "Animals")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, models.ObjectAnimal, dets[0].ObjectType)
	assert.Equal(t, "deer", dets[0].ReportText)
	assert.Equal(t, "adult grazing", dets[0].Extra["description"])
	assert.Nil(t, dets[0].Box)
}

func TestDispatchDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeService
	}{
		{"service error", &fakeService{err: errors.New("connection refused")}},
		{"nil response", &fakeService{}},
		{"unknown function", &fakeService{resp: &Response{Calls: []Call{{Name: "report_tractor"}}}}},
		{"confidence not a number", &fakeService{resp: &Response{Calls: []Call{bareCall("high")}}}},
		{"confidence as percent", &fakeService{resp: &Response{Calls: []Call{bareCall(92.0)}}}},
		{"short box", &fakeService{resp: &Response{Calls: []Call{{Name: "report_weed", Args: map[string]any{
			"report": "thistle", "confidence": 0.9, "box_parameter": []any{1.0, 2.0},
		}}}}}},
		{"fractional box", &fakeService{resp: &Response{Calls: []Call{{Name: "report_weed", Args: map[string]any{
			"report": "thistle", "confidence": 0.9, "box_parameter": []any{1.5, 2.0, 3.0, 4.0},
		}}}}}},
		{"missing report", &fakeService{resp: &Response{Calls: []Call{{Name: "report_weed", Args: map[string]any{
			"confidence": 0.9,
		}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), tt.svc, testLogger(), 0)

			dets, err := d.Dispatch(context.Background(), frameRecord(t), "bare spots and weeds")
			assert.Nil(t, dets)

			var decodeErr *models.DetectionDecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.Equal(t, 0, decodeErr.Frame)
		})
	}
}

func TestDispatchRejectsFunctionNotOffered(t *testing.T) {
	weed := Call{Name: "report_weed", Args: map[string]any{"report": "thistle", "confidence": 0.95}}
	svc := &fakeService{resp: &Response{Calls: []Call{bareCall(0.9), weed}}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	dets, err := d.Dispatch(context.Background(), frameRecord(t), "bare spot")
	assert.Nil(t, dets)

	var decodeErr *models.DetectionDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), "report_weed")
	require.Len(t, svc.requests, 1)
	assert.Len(t, svc.requests[0].Schemas, 1)
}

func TestDispatchMissingConfidenceDropsOnlyThatCall(t *testing.T) {
	sloppy := bareCall(nil)
	delete(sloppy.Args, "confidence")
	svc := &fakeService{resp: &Response{Calls: []Call{bareCall(0.9), sloppy}}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	dets, err := d.Dispatch(context.Background(), frameRecord(t), "bare spot")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 0.9, dets[0].Confidence)
}

func TestDispatchTimeout(t *testing.T) {
	svc := &fakeService{resp: &Response{}, delay: time.Second}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 10*time.Millisecond)

	_, err := d.Dispatch(context.Background(), frameRecord(t), "weed")

	var decodeErr *models.DetectionDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchMissingImage(t *testing.T) {
	svc := &fakeService{resp: &Response{}}
	d := NewDispatcher(NewRegistry(DefaultConfidenceFloor), svc, testLogger(), 0)

	_, err := d.Dispatch(context.Background(), models.FrameRecord{FrameIndex: 4, ImagePath: "/nonexistent/frame_004.jpg"}, "weed")

	var decodeErr *models.DetectionDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, 4, decodeErr.Frame)
	assert.Empty(t, svc.requests)
}
