package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bdougie/fieldscan/internal/models"
)

// Storage receives the records of a scan as they are completed.
type Storage interface {
	// Begin is called once before any record of scan is added.
	Begin(ctx context.Context, scan *models.ScanResult) error

	// AddRecord stores a single finished frame record.
	AddRecord(ctx context.Context, rec models.FrameRecord) error

	// Flush ensures everything for scan is saved. It is also called when a
	// scan is cancelled, with the records completed so far.
	Flush(ctx context.Context, scan *models.ScanResult) error
}

// Multi fans every call out to each of sinks, collecting all errors.
func Multi(sinks ...Storage) Storage {
	return multi(sinks)
}

type multi []Storage

func (m multi) Begin(ctx context.Context, scan *models.ScanResult) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Begin(ctx, scan))
	}
	return errors.Join(errs...)
}

func (m multi) AddRecord(ctx context.Context, rec models.FrameRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddRecord(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m multi) Flush(ctx context.Context, scan *models.ScanResult) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Flush(ctx, scan))
	}
	return errors.Join(errs...)
}

const JSONFileName = "results.json"

// JSONStorage writes the whole scan result as results.json in the output
// directory. Records are rewritten every batchSize additions so an
// interrupted run still leaves a usable file.
type JSONStorage struct {
	mu        sync.Mutex
	outputDir string
	batchSize int
	scan      *models.ScanResult
	records   []models.FrameRecord
	pending   int
}

// NewJSONStorage creates a JSON sink for outputDir.
func NewJSONStorage(outputDir string) *JSONStorage {
	return &JSONStorage{outputDir: outputDir, batchSize: 10}
}

func (s *JSONStorage) Begin(ctx context.Context, scan *models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scan = scan
	s.records = nil
	s.pending = 0
	return nil
}

// AddRecord adds a record to the batch and writes the file if the batch is full.
func (s *JSONStorage) AddRecord(ctx context.Context, rec models.FrameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.pending++

	if s.pending >= s.batchSize {
		return s.write(s.snapshot())
	}
	return nil
}

// Flush writes the final scan result.
func (s *JSONStorage) Flush(ctx context.Context, scan *models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scan == nil {
		scan = s.snapshot()
	}
	return s.write(scan)
}

func (s *JSONStorage) snapshot() *models.ScanResult {
	out := models.ScanResult{}
	if s.scan != nil {
		out = *s.scan
	}
	out.Records = append([]models.FrameRecord(nil), s.records...)
	return &out
}

func (s *JSONStorage) write(scan *models.ScanResult) error {
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for results: %w", err)
	}

	path := filepath.Join(s.outputDir, JSONFileName)
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(scan); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	s.pending = 0
	return nil
}

// ReadJSON loads a results.json written by JSONStorage.
func ReadJSON(path string) (*models.ScanResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	var scan models.ScanResult
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	return &scan, nil
}
