package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectType identifies what a detector reports.
type ObjectType string

const (
	ObjectBareSpot ObjectType = "bare spot"
	ObjectAnimal   ObjectType = "animal"
	ObjectWeed     ObjectType = "weed"
)

// TelemetryEntry is a single subtitle cue keyed by its truncated start second.
type TelemetryEntry struct {
	Second int    `json:"second"`
	Text   string `json:"text"`
}

// GeoPoint is a latitude/longitude pair decoded from telemetry text.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBox is a rectangle in image pixel coordinates.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// String renders the box the way detectors report it: [x1,y1,x2,y2].
func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is one object reported by a detector for a frame.
type Detection struct {
	ObjectType ObjectType        `json:"object_type"`
	Confidence float64           `json:"confidence"`
	Box        *BoundingBox      `json:"box_parameter,omitempty"`
	ReportText string            `json:"report"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Summary returns a short human readable report of the detection.
func (d Detection) Summary() string {
	var b strings.Builder
	if species := d.Extra["species"]; species != "" {
		fmt.Fprintf(&b, "Species: %s \n", species)
		fmt.Fprintf(&b, "Description: %s \n", d.Extra["description"])
	} else {
		fmt.Fprintf(&b, "Report: %s \n", d.ReportText)
	}
	fmt.Fprintf(&b, "Detection confidence is %.2f. \n", d.Confidence)
	box := "None"
	if d.Box != nil {
		box = d.Box.String()
	}
	fmt.Fprintf(&b, "Box coordinates: %s.", box)
	return b.String()
}

// FrameRecord ties a sampled frame to its telemetry and detections.
type FrameRecord struct {
	FrameIndex         int         `json:"frame"`
	ImagePath          string      `json:"image_path"`
	Position           *GeoPoint   `json:"position,omitempty"`
	TelemetryText      string      `json:"gps_text"`
	Detections         []Detection `json:"detections"`
	AnnotatedImagePath string      `json:"boxed_image_path,omitempty"`
}

// SkippedFrame records why a second produced no record or no detections.
type SkippedFrame struct {
	Second int    `json:"second"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// ScanResult is everything a single scan produced.
type ScanResult struct {
	ID         uuid.UUID      `json:"id"`
	VideoPath  string         `json:"video_path"`
	TrackPath  string         `json:"track_path"`
	LookFor    string         `json:"look_for"`
	Records    []FrameRecord  `json:"records"`
	Skipped    []SkippedFrame `json:"skipped"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// DetectionCount returns the number of detections across all records.
func (r *ScanResult) DetectionCount() int {
	n := 0
	for _, rec := range r.Records {
		n += len(rec.Detections)
	}
	return n
}
