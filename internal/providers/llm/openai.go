package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const providerOpenAI = "openai"

// OpenAI serves any chat-completions compatible endpoint using strict json_schema output.
type OpenAI struct {
	client *openai.Client
	models Models
}

func NewOpenAI(apiKey, baseURL string, models Models) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if models == nil {
		models = Models{}
	}
	if models[TierStandard] == "" {
		models[TierStandard] = "gpt-4o-mini"
	}
	return &OpenAI{client: &client, models: models}, nil
}

func (o *OpenAI) Close() error { return nil }

func (o *OpenAI) Execute(ctx context.Context, req Request) (string, error) {
	name := o.models.For(req.Tier)
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    name,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
	}
	if req.Schema != nil {
		schemaName := req.SchemaName
		if schemaName == "" {
			schemaName = "response"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: param.NewOpt(req.Schema.Description),
					Schema:      StrictSchema(req.Schema.CloneSchemas()),
					Strict:      param.NewOpt(true),
				},
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &TransportError{Provider: providerOpenAI, Model: name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &TransportError{Provider: providerOpenAI, Model: name, Err: ErrEmptyResponse}
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", &TransportError{Provider: providerOpenAI, Model: name, Err: fmt.Errorf("refused: %s", choice.Message.Refusal)}
	}
	if choice.FinishReason != "stop" {
		return "", &TransportError{Provider: providerOpenAI, Model: name, Err: fmt.Errorf("unexpected finish reason: %s", choice.FinishReason)}
	}
	if choice.Message.Content == "" {
		return "", &TransportError{Provider: providerOpenAI, Model: name, Err: ErrEmptyResponse}
	}
	return choice.Message.Content, nil
}

// StrictSchema rewrites m in place for strict structured outputs: every object closes
// its properties and lists all of them as required, optional ones become nullable.
func StrictSchema(m *jsonschema.Schema) *jsonschema.Schema {
	if m == nil {
		return nil
	}
	if m.Type != "" && len(m.Types) > 0 {
		m.Types = append(m.Types, m.Type)
		m.Type = ""
	}
	typ := m.Type
	if typ == "" {
		for _, t := range m.Types {
			if t != "null" && t != "" {
				typ = t
				break
			}
		}
	}

	switch typ {
	case "array":
		m.Items = StrictSchema(m.Items)
	case "object":
		m.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		required := make(map[string]struct{}, len(m.Properties))
		for _, k := range m.Required {
			required[k] = struct{}{}
		}
		for k, v := range m.Properties {
			if _, ok := required[k]; !ok {
				required[k] = struct{}{}
				if !slices.Contains(v.Types, "null") {
					v.Types = append(v.Types, "null")
				}
			}
			m.Properties[k] = StrictSchema(v)
		}
		m.Required = slices.Sorted(maps.Keys(required))
	}
	return m
}
