package detector

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bdougie/fieldscan/internal/models"
)

func decodeReport(objectType models.ObjectType, args map[string]any) (models.Detection, error) {
	report, err := stringArg(args, "report")
	if err != nil {
		return models.Detection{}, err
	}
	confidence, err := confidenceArg(args)
	if err != nil {
		return models.Detection{}, err
	}
	box, err := boxArg(args, "box_parameter")
	if err != nil {
		return models.Detection{}, err
	}

	return models.Detection{
		ObjectType: objectType,
		Confidence: confidence,
		Box:        box,
		ReportText: report,
	}, nil
}

func decodeAnimal(args map[string]any) (models.Detection, error) {
	species, err := stringArg(args, "species")
	if err != nil {
		return models.Detection{}, err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return models.Detection{}, err
	}
	confidence, err := confidenceArg(args)
	if err != nil {
		return models.Detection{}, err
	}
	box, err := boxArg(args, "box_parameter")
	if err != nil {
		return models.Detection{}, err
	}

	return models.Detection{
		ObjectType: models.ObjectAnimal,
		Confidence: confidence,
		Box:        box,
		ReportText: species,
		Extra: map[string]string{
			"species":     species,
			"description": description,
		},
	}, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return s, nil
}

func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("argument %q: not a number", key)
	}
	return f, nil
}

// confidenceArg reads the confidence of a call. An absent or null value is 0
// and so falls below any floor; anything outside [0, 1] is an error.
func confidenceArg(args map[string]any) (float64, error) {
	if v, ok := args["confidence"]; !ok || v == nil {
		return 0, nil
	}
	f, err := numberArg(args, "confidence")
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("argument %q: %v is outside [0, 1]", "confidence", f)
	}
	return f, nil
}

// boxArg returns nil for an absent or null box and an error for anything
// other than four integral numbers.
func boxArg(args map[string]any, key string) (*models.BoundingBox, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []int:
		for _, n := range t {
			items = append(items, n)
		}
	case []float64:
		for _, n := range t {
			items = append(items, n)
		}
	default:
		return nil, fmt.Errorf("argument %q: expected array, got %T", key, v)
	}
	if len(items) != 4 {
		return nil, fmt.Errorf("argument %q: expected 4 values, got %d", key, len(items))
	}

	var coords [4]int
	for i, item := range items {
		f, err := toFloat(item)
		if err != nil {
			return nil, fmt.Errorf("argument %q[%d]: %w", key, i, err)
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("argument %q[%d]: %v is not an integer", key, i, f)
		}
		coords[i] = int(f)
	}

	return &models.BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
