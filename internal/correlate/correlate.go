// Package correlate joins sampled frames with the telemetry cue for the same second.
package correlate

import (
	"sort"

	"github.com/bdougie/fieldscan/internal/models"
	"github.com/bdougie/fieldscan/internal/telemetry"
)

// Join returns one record per second present in both frames and track, in
// ascending second order. Seconds present in only one side are dropped.
func Join(frames map[int]string, track telemetry.Track) []models.FrameRecord {
	secs := make([]int, 0, len(frames))
	for sec := range frames {
		if _, ok := track[sec]; ok {
			secs = append(secs, sec)
		}
	}
	sort.Ints(secs)

	records := make([]models.FrameRecord, 0, len(secs))
	for _, sec := range secs {
		text := track[sec]
		records = append(records, models.FrameRecord{
			FrameIndex:    sec,
			ImagePath:     frames[sec],
			Position:      telemetry.ParseCoordinates(text),
			TelemetryText: text,
		})
	}
	return records
}

// FlightPath returns the positions of records that have one, in record order.
// It is the polyline a map view draws for the flight.
func FlightPath(records []models.FrameRecord) []models.GeoPoint {
	var path []models.GeoPoint
	for _, rec := range records {
		if rec.Position != nil {
			path = append(path, *rec.Position)
		}
	}
	return path
}
