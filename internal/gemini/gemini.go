// Package gemini implements detector.Service on the Gemini API using native
// function calling.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/bdougie/fieldscan/internal/detector"
)

const DefaultModel = "gemini-2.0-flash"

type Service struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewService creates a Gemini API client for model.
func NewService(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Service{client: client, model: model, logger: logger}, nil
}

// Detect sends the frame and prompt with every schema declared as a callable
// function and returns the calls the model made.
func (s *Service) Detect(ctx context.Context, req detector.Request) (*detector.Response, error) {
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType),
	}, genai.RoleUser)

	resp, err := s.client.Models.GenerateContent(ctx, s.model, []*genai.Content{content}, generateConfig(req.Schemas))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	out := &detector.Response{}
	for _, fc := range resp.FunctionCalls() {
		out.Calls = append(out.Calls, detector.Call{Name: fc.Name, Args: fc.Args})
	}
	s.logger.Debug("gemini response", "image", req.Image.Path, "calls", len(out.Calls))
	return out, nil
}

func generateConfig(schemas []detector.Schema) *genai.GenerateContentConfig {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, sc := range schemas {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        sc.Name,
			Description: sc.Description,
			Parameters:  toSchema(sc.Parameters),
		})
	}

	return &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
		Tools:       []*genai.Tool{{FunctionDeclarations: decls}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		},
	}
}

func toSchema(p *detector.Parameter) *genai.Schema {
	if p == nil {
		return nil
	}

	s := &genai.Schema{
		Type:        schemaType(p.Type),
		Description: p.Description,
		Items:       toSchema(p.Items),
		Required:    p.Required,
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, prop := range p.Properties {
			s.Properties[name] = toSchema(prop)
		}
	}
	return s
}

func schemaType(t string) genai.Type {
	switch t {
	case detector.TypeObject:
		return genai.TypeObject
	case detector.TypeString:
		return genai.TypeString
	case detector.TypeNumber:
		return genai.TypeNumber
	case detector.TypeInteger:
		return genai.TypeInteger
	case detector.TypeArray:
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}
