// Package opencv provides the gocv backed video source and box annotator.
package opencv

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/bdougie/fieldscan/internal/extractor"
	"github.com/bdougie/fieldscan/internal/models"
)

// Source reads frames through an OpenCV VideoCapture.
type Source struct {
	capture *gocv.VideoCapture
}

// Open opens videoPath with OpenCV's FFmpeg backend.
func Open(videoPath string) (*Source, error) {
	capture, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, &models.SourceUnreadableError{Path: videoPath, Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &models.SourceUnreadableError{Path: videoPath, Err: fmt.Errorf("capture not opened")}
	}
	return &Source{capture: capture}, nil
}

func (s *Source) FrameCount() int {
	return int(s.capture.Get(gocv.VideoCaptureFrameCount))
}

// FPS is truncated to a whole number of frames per second.
func (s *Source) FPS() float64 {
	return float64(int(s.capture.Get(gocv.VideoCaptureFPS)))
}

func (s *Source) SeekMillis(ms int64) error {
	s.capture.Set(gocv.VideoCapturePosMsec, float64(ms))
	return nil
}

func (s *Source) Read(ctx context.Context) (extractor.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, extractor.ErrNoFrame
	}
	return &frame{mat: mat}, nil
}

func (s *Source) Close() error {
	return s.capture.Close()
}

type frame struct {
	mat gocv.Mat
}

func (f *frame) Save(path string) error {
	if !gocv.IMWrite(path, f.mat) {
		return fmt.Errorf("failed to write frame to %s", path)
	}
	return nil
}

func (f *frame) Close() error {
	return f.mat.Close()
}
