package opencv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/bdougie/fieldscan/internal/annotate"
	"github.com/bdougie/fieldscan/internal/models"
)

// Annotator draws detection boxes with gocv.Rectangle.
type Annotator struct {
	Color     color.RGBA
	Thickness int
}

func NewAnnotator() *Annotator {
	return &Annotator{Color: annotate.BoxColor, Thickness: annotate.BoxThickness}
}

// Annotate writes a boxed copy of imagePath and returns its path.
func (a *Annotator) Annotate(imagePath string, boxes []models.BoundingBox) (string, error) {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return "", fmt.Errorf("failed to read image %s", imagePath)
	}
	defer img.Close()

	for _, b := range boxes {
		rect := image.Rect(b.X1, b.Y1, b.X2, b.Y2)
		gocv.Rectangle(&img, rect, a.Color, a.Thickness)
	}

	out := annotate.BoxedPath(imagePath)
	if !gocv.IMWrite(out, img) {
		return "", fmt.Errorf("failed to write annotated image %s", out)
	}
	return out, nil
}
