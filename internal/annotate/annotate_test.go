package annotate

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/fieldscan/internal/models"
)

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 100}))
}

func TestBoxedPath(t *testing.T) {
	assert.Equal(t, "out/frame_007_boxed.jpg", BoxedPath("out/frame_007.jpg"))
}

func TestAnnotate(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame_001.jpg")
	writeJPEG(t, src, 100, 80)

	out, err := NewAnnotator().Annotate(src, []models.BoundingBox{{X1: 10, Y1: 10, X2: 60, Y2: 50}})
	require.NoError(t, err)
	assert.Equal(t, BoxedPath(src), out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 80), img.Bounds())

	r, g, b, _ := img.At(12, 30).RGBA()
	assert.Less(t, r>>8, uint32(80), "left edge should be blue")
	assert.Less(t, g>>8, uint32(80), "left edge should be blue")
	assert.Greater(t, b>>8, uint32(180), "left edge should be blue")

	r, g, b, _ = img.At(35, 30).RGBA()
	assert.Greater(t, r>>8, uint32(200), "interior stays white")
	assert.Greater(t, g>>8, uint32(200), "interior stays white")
	assert.Greater(t, b>>8, uint32(200), "interior stays white")
}

func TestAnnotateClipsOutOfBoundsBox(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame_002.jpg")
	writeJPEG(t, src, 40, 40)

	_, err := NewAnnotator().Annotate(src, []models.BoundingBox{{X1: 30, Y1: 30, X2: 500, Y2: 500}})
	assert.NoError(t, err)
}

func TestAnnotateMissingImage(t *testing.T) {
	_, err := NewAnnotator().Annotate(filepath.Join(t.TempDir(), "missing.jpg"), []models.BoundingBox{{X2: 1, Y2: 1}})
	assert.Error(t, err)
}

func TestAnnotateUndecodableImage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame_003.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not a jpeg"), 0644))

	_, err := NewAnnotator().Annotate(src, []models.BoundingBox{{X2: 1, Y2: 1}})
	assert.Error(t, err)
	assert.NoFileExists(t, BoxedPath(src))
}
