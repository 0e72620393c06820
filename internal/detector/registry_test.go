package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/fieldscan/internal/models"
)

func keys(specs []Spec) []string {
	var out []string
	for _, s := range specs {
		out = append(out, s.Key)
	}
	return out
}

func TestResolve(t *testing.T) {
	r := NewRegistry(DefaultConfidenceFloor)

	tests := []struct {
		lookFor string
		want    []string
	}{
		{"bare spot", []string{"bare"}},
		{"Bare Spots", []string{"bare"}},
		{"weeds and animals", []string{"animal", "weed"}},
		{"bare spot, animal, weed", []string{"bare", "animal", "weed"}},
		{"tractors", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.lookFor, func(t *testing.T) {
			assert.Equal(t, tt.want, keys(r.Resolve(tt.lookFor)))
		})
	}
}

func TestLookup(t *testing.T) {
	r := NewRegistry(DefaultConfidenceFloor)

	spec, ok := r.Lookup("report_weed")
	require.True(t, ok)
	assert.Equal(t, models.ObjectWeed, spec.Type)

	_, ok = r.Lookup("report_tractor")
	assert.False(t, ok)
}

func TestSpecParseFloorIsInclusive(t *testing.T) {
	spec, ok := NewRegistry(0.85).Lookup("report_weed")
	require.True(t, ok)

	below, err := spec.Parse(map[string]any{"report": "thistle", "confidence": 0.84})
	require.NoError(t, err)
	assert.Nil(t, below)

	at, err := spec.Parse(map[string]any{"report": "thistle", "confidence": 0.85})
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Nil(t, at.Box)
}

func TestSpecParseConfidenceRange(t *testing.T) {
	spec, ok := NewRegistry(0.85).Lookup("report_bare_spot")
	require.True(t, ok)

	for _, confidence := range []any{92.0, 1.01, -0.1} {
		det, err := spec.Parse(map[string]any{"report": "gap", "confidence": confidence})
		assert.Error(t, err, "confidence %v", confidence)
		assert.Nil(t, det)
	}

	top, err := spec.Parse(map[string]any{"report": "gap", "confidence": 1.0})
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, 1.0, top.Confidence)
}

func TestSpecParseMissingConfidenceIsBelowFloor(t *testing.T) {
	spec, ok := NewRegistry(0.85).Lookup("report_animal")
	require.True(t, ok)

	for _, args := range []map[string]any{
		{"species": "fox", "description": "den"},
		{"species": "fox", "description": "den", "confidence": nil},
	} {
		det, err := spec.Parse(args)
		require.NoError(t, err)
		assert.Nil(t, det)
	}
}

func TestSpecParseIntegerArgs(t *testing.T) {
	spec, _ := NewRegistry(0.5).Lookup("report_bare_spot")

	det, err := spec.Parse(map[string]any{
		"report":        "gap",
		"confidence":    1,
		"box_parameter": []int{1, 2, 3, 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, det.Confidence)
	assert.Equal(t, "[1,2,3,4]", det.Box.String())
}

func TestBuildRequest(t *testing.T) {
	r := NewRegistry(DefaultConfidenceFloor)
	req := BuildRequest(r.Resolve("weed"), Image{Path: "f.jpg", MIMEType: "image/jpeg"})

	assert.Equal(t, []string{"report_weed"}, []string{req.Schemas[0].Name})
	assert.Contains(t, req.Prompt, promptHeader)
	assert.Contains(t, req.Prompt, "golden or beige")
	assert.Contains(t, req.Prompt, "must not overlap")
	assert.Equal(t, "f.jpg", req.Image.Path)
}
