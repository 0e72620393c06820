package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"

	"github.com/bdougie/fieldscan/internal/detector"
)

const systemPrompt = "You are a visual analysis assistant that inspects aerial drone images of crop fields. " +
	"You report only what is clearly visible and answer strictly in the requested JSON format."

// AgentConfig selects the Ollama server and vision model.
type AgentConfig struct {
	BaseURL string
	Port    int
	Model   string
}

// completeFunc sends a prompt and an image to a model and returns its text reply.
type completeFunc func(ctx context.Context, prompt, imagePath string) (string, error)

// AgentService implements detector.Service on a local Ollama vision model.
// Ollama models are asked to answer with the function calls as a JSON array.
type AgentService struct {
	complete completeFunc
	logger   *slog.Logger
}

// NewAgentService checks that Ollama is reachable and sets up the vision agent.
func NewAgentService(ctx context.Context, cfg AgentConfig, logger *slog.Logger) (*AgentService, error) {
	if err := ping(ctx, cfg); err != nil {
		return nil, fmt.Errorf("ollama not reachable at %s:%d: %w", cfg.BaseURL, cfg.Port, err)
	}

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	})
	provider.UseModel(ctx, &types.Model{ID: cfg.Model})

	a := agent.NewAgent(&agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: systemPrompt,
	})

	complete := func(ctx context.Context, prompt, imagePath string) (string, error) {
		resp := a.Run(ctx, agent.WithInput(prompt), agent.WithImagePath(imagePath))
		if resp.Err != nil {
			return "", resp.Err
		}
		if len(resp.Messages) == 0 {
			return "", fmt.Errorf("no response messages received from model")
		}
		return resp.Messages[len(resp.Messages)-1].Content, nil
	}

	return &AgentService{complete: complete, logger: logger}, nil
}

func ping(ctx context.Context, cfg AgentConfig) error {
	url := fmt.Sprintf("%s:%d/api/tags", strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// Detect implements detector.Service.
func (s *AgentService) Detect(ctx context.Context, req detector.Request) (*detector.Response, error) {
	prompt, err := agentPrompt(req)
	if err != nil {
		return nil, err
	}

	content, err := s.complete(ctx, prompt, req.Image.Path)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("raw response content", "image", req.Image.Path, "content", content)

	calls, err := parseCalls(content)
	if err != nil {
		return nil, err
	}
	return &detector.Response{Calls: calls}, nil
}

// agentPrompt appends the function definitions and the reply format to the
// request prompt, since the agent has no native function calling.
func agentPrompt(req detector.Request) (string, error) {
	schemas, err := json.MarshalIndent(req.Schemas, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode schemas: %w", err)
	}

	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nAvailable functions:\n")
	b.Write(schemas)
	b.WriteString("\n\nRespond with only a JSON array of function calls, each of the form " +
		`{"name": "<function name>", "arguments": {...}}. ` +
		"Return an empty array [] when nothing is found.")
	return b.String(), nil
}

type agentCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// parseCalls extracts the JSON array of calls from a model reply, tolerating
// markdown fences and text around it.
func parseCalls(content string) ([]detector.Call, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in response: %q", truncate(content, 200))
	}

	var raw []agentCall
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	calls := make([]detector.Call, 0, len(raw))
	for i, c := range raw {
		if c.Name == "" {
			return nil, fmt.Errorf("call %d has no name", i)
		}
		calls = append(calls, detector.Call{Name: c.Name, Args: c.Arguments})
	}
	return calls, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
