package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// Config is read from the environment with the GEMINI prefix.
type Config struct {
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"30s"`
}

// Gemini adapts the Google generative backend to the engine's
// ModelGateway contract. It is stateless across calls; the whole
// conversation is re-sent on every dispatch.
type Gemini struct {
	client  *genai.Client
	timeout time.Duration
}

var _ contractx.ModelGateway = (*Gemini)(nil)

func New(ctx context.Context, cfg Config) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", contractx.ErrValidation)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gemini{client: client, timeout: timeout}, nil
}

func (g *Gemini) Generate(ctx context.Context, req contractx.GenerateRequest) (contractx.Reply, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return contractx.Reply{}, fmt.Errorf("%w: model is empty", contractx.ErrValidation)
	}

	config := &genai.GenerateContentConfig{}
	if req.AllowTools && len(req.Tools) > 0 {
		config.Tools = toTools(req.Tools)
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, model, toContents(req.Turns), config)
	if err != nil {
		return contractx.Reply{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return parseReply(resp)
}

// toContents maps engine turns onto the backend wire shape. Tool calls
// ride on a model turn; tool results go back as a user-side function
// response, which is what the API expects for the round trip.
func toContents(turns []contractx.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case contractx.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: turn.Text}},
			})
		case contractx.RoleModel:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: turn.Text}},
			})
		case contractx.RoleToolCall:
			if turn.Call == nil {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{
						Name: turn.Call.Name,
						Args: turn.Call.Args,
					},
				}},
			})
		case contractx.RoleToolResult:
			if turn.Result == nil {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     turn.Result.Tool,
						Response: resultPayload(*turn.Result),
					},
				}},
			})
		}
	}
	return contents
}

func resultPayload(result contractx.ToolResult) map[string]any {
	if result.Error != "" {
		return map[string]any{"error": result.Error}
	}
	if m, ok := result.Result.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": result.Result}
}

func toTools(decls []contractx.ToolDecl) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, decl := range decls {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  toSchema(decl.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func toSchema(params map[string]contractx.ToolParam) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
	}
	for name, param := range params {
		schema.Properties[name] = &genai.Schema{
			Type:        schemaType(param.Type),
			Description: param.Description,
		}
		if param.Required {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

// parseReply inspects the first candidate: a function call wins over
// text; neither present is a backend failure the engine must absorb.
func parseReply(resp *genai.GenerateContentResponse) (contractx.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return contractx.Reply{}, contractx.ErrEmptyReply
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			call := &contractx.ToolCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}
			if call.Args == nil {
				call.Args = map[string]any{}
			}
			return contractx.Reply{Call: call}, nil
		}
		text.WriteString(part.Text)
	}

	if strings.TrimSpace(text.String()) == "" {
		return contractx.Reply{}, contractx.ErrEmptyReply
	}
	return contractx.Reply{Text: text.String()}, nil
}
