package detector

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Parameter types understood by every detection backend.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeArray   = "array"
)

// Parameter is a JSON-schema style description of a call argument.
type Parameter struct {
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]*Parameter `json:"properties,omitempty"`
	Items       *Parameter            `json:"items,omitempty"`
	Required    []string              `json:"required,omitempty"`
}

// Schema is a named structured output the service may call.
type Schema struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  *Parameter `json:"parameters"`
}

// Image is the frame payload sent to the service.
type Image struct {
	Path     string
	Data     []byte
	MIMEType string
}

// LoadImage reads path and sniffs its MIME type.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Path: path, Data: data, MIMEType: http.DetectContentType(data)}, nil
}

// Request is a single combined detection request for one frame.
type Request struct {
	Prompt  string
	Schemas []Schema
	Image   Image
}

// Call is one structured output the service chose to produce.
type Call struct {
	Name string
	Args map[string]any
}

// Response holds every call the service made for a request, possibly none.
type Response struct {
	Calls []Call
}

// Service is the remote detection backend.
type Service interface {
	Detect(ctx context.Context, req Request) (*Response, error)
}

const (
	promptHeader  = "Analyze this frame and identify any of the following objects:"
	promptClosing = "For every object you find, call the matching function once with a tight bounding box " +
		"[x1, y1, x2, y2] in pixel coordinates that encloses only that object. Boxes must not overlap " +
		"and must not include background, surrounding crop or soil beyond the object's edges. " +
		"Only call a function for objects that are clearly visible; call nothing if none are."
)

// BuildRequest combines the prompt fragments and schemas of specs into one request.
func BuildRequest(specs []Spec, image Image) Request {
	parts := make([]string, 0, len(specs)+2)
	parts = append(parts, promptHeader)

	schemas := make([]Schema, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, s.Prompt)
		schemas = append(schemas, s.Schema)
	}
	parts = append(parts, promptClosing)

	return Request{
		Prompt:  strings.Join(parts, "\n"),
		Schemas: schemas,
		Image:   image,
	}
}
