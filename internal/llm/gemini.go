package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"google.golang.org/genai"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultEmbedModel = "gemini-embedding-001"

	// Documents are truncated before prompting; beyond this the tail of a
	// CV or report adds noise, not signal.
	maxDocumentChars = 18000
)

// Gemini implements Provider and Embedder on the Gemini API. The client
// is safe for concurrent use by multiple pipeline workers.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
}

// NewGemini creates a Gemini-backed provider. Empty model names fall back
// to the defaults.
func NewGemini(ctx context.Context, apiKey, model, embedModel string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if embedModel = strings.TrimSpace(embedModel); embedModel == "" {
		embedModel = defaultEmbedModel
	}

	return &Gemini{client: client, model: model, embedModel: embedModel}, nil
}

var resumeResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":    {Type: genai.TypeString},
		"summary": {Type: genai.TypeString},
		"skills":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"experiences": {Type: genai.TypeArray, Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":      {Type: genai.TypeString},
				"company":    {Type: genai.TypeString},
				"duration":   {Type: genai.TypeString},
				"highlights": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
		}},
		"achievements": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"name", "skills"},
}

var reportResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":        {Type: genai.TypeString},
		"summary":      {Type: genai.TypeString},
		"approach":     {Type: genai.TypeString},
		"technologies": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"outcomes":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"summary"},
}

var resumeScoreSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"technical_skills_match":     {Type: genai.TypeNumber},
		"experience_level":           {Type: genai.TypeNumber},
		"relevant_achievements":      {Type: genai.TypeNumber},
		"cultural_collaboration_fit": {Type: genai.TypeNumber},
		"cv_feedback":                {Type: genai.TypeString},
	},
	Required: []string{
		"technical_skills_match", "experience_level",
		"relevant_achievements", "cultural_collaboration_fit",
	},
}

var reportScoreSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"correctness":               {Type: genai.TypeNumber},
		"code_quality_structure":    {Type: genai.TypeNumber},
		"resilience_error_handling": {Type: genai.TypeNumber},
		"documentation_explanation": {Type: genai.TypeNumber},
		"creativity_bonus":          {Type: genai.TypeNumber},
		"project_feedback":          {Type: genai.TypeString},
	},
	Required: []string{
		"correctness", "code_quality_structure", "resilience_error_handling",
		"documentation_explanation", "creativity_bonus",
	},
}

func (g *Gemini) ParseResume(ctx context.Context, resumeText string) (map[string]any, error) {
	return g.generateObject(ctx, resumeParsePrompt(truncate(resumeText, maxDocumentChars)), resumeResponseSchema)
}

func (g *Gemini) ParseProjectReport(ctx context.Context, reportText string) (map[string]any, error) {
	return g.generateObject(ctx, reportParsePrompt(truncate(reportText, maxDocumentChars)), reportResponseSchema)
}

func (g *Gemini) ScoreResume(ctx context.Context, req ScoreResumeRequest) (map[string]any, error) {
	return g.generateObject(ctx, scoreResumePrompt(req), resumeScoreSchema)
}

func (g *Gemini) ScoreProjectReport(ctx context.Context, req ScoreReportRequest) (map[string]any, error) {
	return g.generateObject(ctx, scoreReportPrompt(req), reportScoreSchema)
}

func (g *Gemini) OverallSummary(ctx context.Context, resumeScore, reportScore map[string]any) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.3),
	}
	return g.generateText(ctx, overallSummaryPrompt(resumeScore, reportScore), cfg)
}

// Embed returns the embedding vector for a retrieval query or chunk.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned an empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}

// generateObject performs a structured JSON call and decodes the response
// leniently: a response that is not valid JSON degrades to an empty object
// for the normalizer to default, rather than failing the job.
func (g *Gemini) generateObject(ctx context.Context, prompt string, schema *genai.Schema) (map[string]any, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.3),
		Seed:             genai.Ptr[int32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	text, err := g.generateText(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(text)
	if err != nil {
		slog.Warn("gemini response was not decodable JSON, using empty object",
			"model", g.model, "error", err)
		return map[string]any{}, nil
	}
	return obj, nil
}

func (g *Gemini) generateText(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			sb.WriteString(part.Text)
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("gemini api returned an empty response")
	}
	return out, nil
}

// truncate cuts s to at most limit bytes, backing off to the nearest
// rune boundary so a multi-byte character is never split.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
