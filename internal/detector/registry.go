// Package detector resolves a free-text request into detector definitions,
// sends each frame to the remote detection service once and decodes the calls
// it makes back into typed detections.
package detector

import (
	"strings"

	"github.com/bdougie/fieldscan/internal/models"
)

// DefaultConfidenceFloor is the lowest confidence a detection is kept at.
const DefaultConfidenceFloor = 0.85

// Spec describes one capability the detection service can be asked about.
type Spec struct {
	Key             string
	Type            models.ObjectType
	Schema          Schema
	Prompt          string
	ConfidenceFloor float64

	decode func(args map[string]any) (models.Detection, error)
}

// Parse turns the arguments of a call to this detector's function into a detection.
// It returns nil, nil when the reported confidence is below its floor.
func (s Spec) Parse(args map[string]any) (*models.Detection, error) {
	d, err := s.decode(args)
	if err != nil {
		return nil, err
	}
	if d.Confidence < s.ConfidenceFloor {
		return nil, nil
	}
	return &d, nil
}

// Registry is the fixed, ordered set of detectors.
type Registry struct {
	specs []Spec
}

// NewRegistry builds the registry with every detector's floor set to floor.
func NewRegistry(floor float64) *Registry {
	specs := []Spec{bareSpotSpec(), animalSpec(), weedSpec()}
	for i := range specs {
		specs[i].ConfidenceFloor = floor
	}
	return &Registry{specs: specs}
}

// Resolve returns, in registry order, every spec whose key occurs in lookFor,
// ignoring case. The result may be empty.
func (r *Registry) Resolve(lookFor string) []Spec {
	lookFor = strings.ToLower(lookFor)

	var matched []Spec
	for _, s := range r.specs {
		if strings.Contains(lookFor, s.Key) {
			matched = append(matched, s)
		}
	}
	return matched
}

// Lookup finds the spec that owns the schema called name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	return lookup(r.specs, name)
}

// Specs returns all registered specs.
func (r *Registry) Specs() []Spec {
	return append([]Spec(nil), r.specs...)
}

func boxParameter() *Parameter {
	return &Parameter{
		Type:        TypeArray,
		Description: "Bounding box as [x1, y1, x2, y2] in pixels",
		Items:       &Parameter{Type: TypeInteger},
	}
}

func bareSpotSpec() Spec {
	return Spec{
		Key:  "bare",
		Type: models.ObjectBareSpot,
		Schema: Schema{
			Name:        "report_bare_spot",
			Description: "Function to report bare spots in the field",
			Parameters: &Parameter{
				Type: TypeObject,
				Properties: map[string]*Parameter{
					"report":        {Type: TypeString},
					"confidence":    {Type: TypeNumber},
					"box_parameter": boxParameter(),
				},
				Required: []string{"report", "confidence", "box_parameter"},
			},
		},
		Prompt: "- **Bare spots**: Bare spots: Large, clearly visible patches of exposed soil with no " +
			"signs of crop growth. These areas appear as uncovered earth, typically light brown or " +
			"tan, with no green vegetation, leaves, or canopy overhead. A valid bare spot must be at " +
			"least 5x5 cm in real-world size, fully free from crops, shadow, debris, or partial " +
			"coverage. The soil surface should be unobstructed and distinctly visible from above.",
		decode: func(args map[string]any) (models.Detection, error) {
			return decodeReport(models.ObjectBareSpot, args)
		},
	}
}

func animalSpec() Spec {
	return Spec{
		Key:  "animal",
		Type: models.ObjectAnimal,
		Schema: Schema{
			Name:        "report_animal",
			Description: "Function to report detected animals in the field",
			Parameters: &Parameter{
				Type: TypeObject,
				Properties: map[string]*Parameter{
					"species":       {Type: TypeString},
					"description":   {Type: TypeString},
					"confidence":    {Type: TypeNumber},
					"box_parameter": boxParameter(),
				},
				Required: []string{"species", "description", "confidence", "box_parameter"},
			},
		},
		Prompt: "- **Animals**: clearly visible animals like deer, birds, or rabbits.",
		decode: decodeAnimal,
	}
}

func weedSpec() Spec {
	return Spec{
		Key:  "weed",
		Type: models.ObjectWeed,
		Schema: Schema{
			Name:        "report_weed",
			Description: "Function to report weeds in the field",
			Parameters: &Parameter{
				Type: TypeObject,
				Properties: map[string]*Parameter{
					"report":        {Type: TypeString},
					"confidence":    {Type: TypeNumber},
					"box_parameter": boxParameter(),
				},
				Required: []string{"report", "confidence", "box_parameter"},
			},
		},
		Prompt: "- **Weeds**: Detect the presence of weeds in this image. Weeds are characterized by small " +
			"or clustered patches of green vegetation that visually contrast with the golden or beige " +
			"wheat crop. Focus on: Green plant patches that are structurally or color-wise different " +
			"from the wheat Vegetation in areas of exposed soil or near crop gaps Ignore: Dark soil " +
			"patches without green coloration Shadows or flattened wheat that may appear darker but " +
			"match wheat color/texture Dry/dead plant matter with no distinct green tones",
		decode: func(args map[string]any) (models.Detection, error) {
			return decodeReport(models.ObjectWeed, args)
		},
	}
}
