package llm

import (
	"context"
	"encoding/json"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

const providerVertex = "vertex"

type VertexGemini struct {
	client      *vertexgenai.Client
	models      Models
	temperature float32
}

func NewVertexGemini(ctx context.Context, projectID, location string, models Models) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = Models{}
	}
	if models[TierStandard] == "" {
		models[TierStandard] = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, models: models, temperature: 0.2}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Execute(ctx context.Context, req Request) (string, error) {
	name := v.models.For(req.Tier)
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	m := v.client.GenerativeModel(name)
	m.SetTemperature(v.temperature)

	prompt := req.Prompt
	if req.Schema != nil {
		m.ResponseMIMEType = "application/json"
		b, err := json.Marshal(req.Schema)
		if err != nil {
			return "", &TransportError{Provider: providerVertex, Model: name, Err: err}
		}
		prompt += "\n\nRespond with a single JSON object that conforms to this JSON Schema:\n" + string(b)
	}

	resp, err := m.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", &TransportError{Provider: providerVertex, Model: name, Err: err}
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// first candidate with content wins
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", &TransportError{Provider: providerVertex, Model: name, Err: ErrEmptyResponse}
	}
	return sb.String(), nil
}
