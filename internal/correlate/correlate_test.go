package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/fieldscan/internal/models"
	"github.com/bdougie/fieldscan/internal/telemetry"
)

func TestJoin(t *testing.T) {
	frames := map[int]string{
		2: "out/frame_002.jpg",
		0: "out/frame_000.jpg",
		5: "out/frame_005.jpg",
	}
	track := telemetry.Track{
		0: "GPS(52.1234, 4.5678)",
		2: "no fix",
		3: "GPS(52.1300, 4.5800)",
	}

	records := Join(frames, track)
	require.Len(t, records, 2)

	assert.Equal(t, models.FrameRecord{
		FrameIndex:    0,
		ImagePath:     "out/frame_000.jpg",
		Position:      &models.GeoPoint{Latitude: 52.1234, Longitude: 4.5678},
		TelemetryText: "GPS(52.1234, 4.5678)",
	}, records[0])

	assert.Equal(t, 2, records[1].FrameIndex)
	assert.Nil(t, records[1].Position)
	assert.Empty(t, records[1].Detections)
}

func TestJoinEmpty(t *testing.T) {
	assert.Empty(t, Join(nil, telemetry.Track{0: "x"}))
	assert.Empty(t, Join(map[int]string{0: "f"}, nil))
}

func TestFlightPath(t *testing.T) {
	records := []models.FrameRecord{
		{FrameIndex: 0, Position: &models.GeoPoint{Latitude: 1.5, Longitude: 2.5}},
		{FrameIndex: 1},
		{FrameIndex: 2, Position: &models.GeoPoint{Latitude: 1.6, Longitude: 2.6}},
	}

	assert.Equal(t, []models.GeoPoint{
		{Latitude: 1.5, Longitude: 2.5},
		{Latitude: 1.6, Longitude: 2.6},
	}, FlightPath(records))
}
