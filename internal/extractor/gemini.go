package extractor

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/facturia/facturia/internal/invoice"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator asks Gemini for schema-constrained JSON.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	schema *genai.Schema
}

// NewGeminiGenerator creates a Gemini backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("extractor: gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("extractor: create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, schema: draftSchema()}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt.Text),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    g.schema,
			Temperature:       genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// draftSchema mirrors the partial draft accepted by Parse.
func draftSchema() *genai.Schema {
	nullableString := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description, Nullable: genai.Ptr(true)}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"posNumber":        {Type: genai.TypeInteger, Description: "Point of sale number"},
			"type":             {Type: genai.TypeString, Enum: enumValues(invoice.VoucherTypes)},
			"concept":          {Type: genai.TypeString, Enum: enumValues(invoice.Concepts)},
			"paymentCondition": {Type: genai.TypeString, Enum: enumValues(invoice.PaymentConditions)},
			"date":             nullableString("ISO 8601 format YYYY-MM-DD, null when the text mentions no date"),
			"time":             nullableString("Format HH:MM (24h), null when the text mentions no time"),
			"scheduledFor":     nullableString("ISO 8601 format YYYY-MM-DD"),
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":      {Type: genai.TypeString},
						"quantity":  {Type: genai.TypeNumber},
						"unitPrice": {Type: genai.TypeNumber},
					},
					Required: []string{"name", "quantity", "unitPrice"},
				},
			},
		},
		Required: []string{"type", "concept", "paymentCondition", "items"},
	}
}
