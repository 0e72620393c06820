// Package annotate draws detection boxes onto sampled frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/bdougie/fieldscan/internal/models"
)

var BoxColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}

const BoxThickness = 5

// BoxedPath returns where the annotated copy of imagePath is written:
// frame_007.jpg becomes frame_007_boxed.jpg next to it.
func BoxedPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + "_boxed" + ext
}

// Annotator renders outlines with the standard library image packages so
// annotation works without OpenCV installed.
type Annotator struct {
	Color     color.Color
	Thickness int
	Quality   int
}

func NewAnnotator() *Annotator {
	return &Annotator{Color: BoxColor, Thickness: BoxThickness, Quality: 90}
}

// Annotate writes a boxed copy of imagePath and returns its path.
func (a *Annotator) Annotate(imagePath string, boxes []models.BoundingBox) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", imagePath, err)
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, b := range boxes {
		a.outline(canvas, image.Rect(b.X1, b.Y1, b.X2, b.Y2))
	}

	out := BoxedPath(imagePath)
	w, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(w, canvas, &jpeg.Options{Quality: a.Quality}); err != nil {
		w.Close()
		os.Remove(out)
		return "", fmt.Errorf("encode %s: %w", out, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return out, nil
}

// outline strokes r inward by the annotator thickness, clipped to the canvas.
func (a *Annotator) outline(canvas *image.RGBA, r image.Rectangle) {
	r = r.Canon()
	fill := image.NewUniform(a.Color)
	t := a.Thickness
	if t < 1 {
		t = 1
	}

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		e = e.Intersect(canvas.Bounds())
		if e.Empty() {
			continue
		}
		draw.Draw(canvas, e, fill, image.Point{}, draw.Src)
	}
}
