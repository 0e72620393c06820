package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bdougie/fieldscan/internal/models"
)

const CSVFileName = "results.csv"

// CSVHeader is the column layout of results.csv.
var CSVHeader = []string{
	"frame", "image_path", "latitude", "longitude", "gps_text",
	"object_type", "report", "confidence", "box_parameter", "boxed_image_path",
}

// CSVStorage keeps the records of a scan and writes results.csv on Flush.
type CSVStorage struct {
	mu        sync.Mutex
	outputDir string
	records   []models.FrameRecord
}

func NewCSVStorage(outputDir string) *CSVStorage {
	return &CSVStorage{outputDir: outputDir}
}

func (s *CSVStorage) Begin(ctx context.Context, scan *models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *CSVStorage) AddRecord(ctx context.Context, rec models.FrameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *CSVStorage) Flush(ctx context.Context, scan *models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", s.outputDir, err)
	}
	path := filepath.Join(s.outputDir, CSVFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, s.records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV writes one row per record. A record with several detections lists
// their values in the detection columns separated by "|".
func WriteCSV(w io.Writer, records []models.FrameRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for _, rec := range records {
		var types, reports, confidences, boxes []string
		for _, d := range rec.Detections {
			types = append(types, string(d.ObjectType))
			reports = append(reports, d.ReportText)
			confidences = append(confidences, strconv.FormatFloat(d.Confidence, 'f', -1, 64))
			box := ""
			if d.Box != nil {
				box = d.Box.String()
			}
			boxes = append(boxes, box)
		}

		lat, lon := "", ""
		if rec.Position != nil {
			lat = strconv.FormatFloat(rec.Position.Latitude, 'f', -1, 64)
			lon = strconv.FormatFloat(rec.Position.Longitude, 'f', -1, 64)
		}

		row := []string{
			strconv.Itoa(rec.FrameIndex),
			rec.ImagePath,
			lat,
			lon,
			rec.TelemetryText,
			joinCell(types),
			joinCell(reports),
			joinCell(confidences),
			joinCell(boxes),
			rec.AnnotatedImagePath,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]models.FrameRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, err
	}
	for i, col := range CSVHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %q at %d, want %q", header[i], i, col)
		}
	}

	var records []models.FrameRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (models.FrameRecord, error) {
	frame, err := strconv.Atoi(row[0])
	if err != nil {
		return models.FrameRecord{}, fmt.Errorf("frame: %w", err)
	}
	rec := models.FrameRecord{
		FrameIndex:         frame,
		ImagePath:          row[1],
		TelemetryText:      row[4],
		AnnotatedImagePath: row[9],
	}

	if row[2] != "" || row[3] != "" {
		lat, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return rec, fmt.Errorf("latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return rec, fmt.Errorf("longitude: %w", err)
		}
		rec.Position = &models.GeoPoint{Latitude: lat, Longitude: lon}
	}

	if row[5] == "" {
		return rec, nil
	}
	types := splitCell(row[5])
	reports := splitCell(row[6])
	confidences := splitCell(row[7])
	boxes := splitCell(row[8])
	if len(reports) != len(types) || len(confidences) != len(types) || len(boxes) != len(types) {
		return rec, fmt.Errorf("detection columns disagree on count")
	}

	for i := range types {
		conf, err := strconv.ParseFloat(confidences[i], 64)
		if err != nil {
			return rec, fmt.Errorf("confidence: %w", err)
		}
		box, err := parseBox(boxes[i])
		if err != nil {
			return rec, err
		}
		rec.Detections = append(rec.Detections, models.Detection{
			ObjectType: models.ObjectType(types[i]),
			Confidence: conf,
			Box:        box,
			ReportText: reports[i],
		})
	}
	return rec, nil
}

func parseBox(s string) (*models.BoundingBox, error) {
	if s == "" {
		return nil, nil
	}
	var b models.BoundingBox
	if _, err := fmt.Sscanf(s, "[%d,%d,%d,%d]", &b.X1, &b.Y1, &b.X2, &b.Y2); err != nil {
		return nil, fmt.Errorf("box_parameter %q: %w", s, err)
	}
	return &b, nil
}

var cellEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

func joinCell(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = cellEscaper.Replace(v)
	}
	return strings.Join(escaped, "|")
}

func splitCell(cell string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(cell); i++ {
		switch c := cell[i]; {
		case c == '\\' && i+1 < len(cell):
			i++
			cur.WriteByte(cell[i])
		case c == '|':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}
