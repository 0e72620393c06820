package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/fieldscan/internal/config"
	"github.com/bdougie/fieldscan/internal/models"
	"github.com/bdougie/fieldscan/internal/storage"
)

func TestParseNear(t *testing.T) {
	point, err := parseNear("52.1234,4.5678")
	require.NoError(t, err)
	assert.Equal(t, models.GeoPoint{Latitude: 52.1234, Longitude: 4.5678}, point)

	point, err = parseNear("-33.8688, 151.2093")
	require.NoError(t, err)
	assert.Equal(t, models.GeoPoint{Latitude: -33.8688, Longitude: 151.2093}, point)

	for _, bad := range []string{"", "52,4", "north", "95.0,4.0", "52.0,181.5"} {
		_, err := parseNear(bad)
		assert.Error(t, err, bad)
	}
}

func TestQueryNearbyNeedsDatabase(t *testing.T) {
	var out bytes.Buffer
	err := queryNearby(context.Background(), &config.Config{}, "52.1,4.5", &out)
	assert.EqualError(t, err, "--near needs DATABASE_URL")
	assert.Empty(t, out.String())
}

func TestPrintNearby(t *testing.T) {
	var out bytes.Buffer
	printNearby(&out, []storage.NearbyFrame{{
		ImagePath: "out/frame_002.jpg",
		Position:  models.GeoPoint{Latitude: -33.86, Longitude: 151.2},
		Distance:  0.0012,
		Detections: []models.Detection{
			{ObjectType: models.ObjectWeed, Confidence: 0.91, ReportText: "thistle"},
		},
	}})

	assert.Equal(t, "out/frame_002.jpg (-33.860000, 151.200000) distance 0.001200\n  weed 0.91 thistle\n", out.String())

	out.Reset()
	printNearby(&out, nil)
	assert.Equal(t, "No stored frames with detections\n", out.String())
}
