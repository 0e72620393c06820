package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/bdougie/fieldscan/internal/detector"
)

func TestGenerateConfigDeclaresEverySchema(t *testing.T) {
	r := detector.NewRegistry(detector.DefaultConfidenceFloor)
	req := detector.BuildRequest(r.Resolve("bare spot, animal"), detector.Image{})

	cfg := generateConfig(req.Schemas)

	require.Len(t, cfg.Tools, 1)
	decls := cfg.Tools[0].FunctionDeclarations
	require.Len(t, decls, 2)
	assert.Equal(t, "report_bare_spot", decls[0].Name)
	assert.Equal(t, "report_animal", decls[1].Name)
	assert.Equal(t, genai.FunctionCallingConfigModeAuto, cfg.ToolConfig.FunctionCallingConfig.Mode)

	params := decls[1].Parameters
	assert.Equal(t, genai.TypeObject, params.Type)
	assert.ElementsMatch(t, []string{"species", "description", "confidence", "box_parameter"}, params.Required)
	assert.Equal(t, genai.TypeNumber, params.Properties["confidence"].Type)
	assert.Equal(t, genai.TypeArray, params.Properties["box_parameter"].Type)
	assert.Equal(t, genai.TypeInteger, params.Properties["box_parameter"].Items.Type)
}

func TestToSchemaNil(t *testing.T) {
	assert.Nil(t, toSchema(nil))
	assert.Equal(t, genai.TypeUnspecified, schemaType("tuple"))
}

func TestNewServiceRequiresKey(t *testing.T) {
	_, err := NewService(context.Background(), "", "", nil)
	assert.Error(t, err)
}
