package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const genAIBatchSize = 100

// GenAIClient uses Google's Gemini API for embeddings and generation.
type GenAIClient struct {
	client      *genai.Client
	embedModel  string
	chatModel   string
	taskType    string
	temperature float32
}

var (
	_ Embedder  = (*GenAIClient)(nil)
	_ Generator = (*GenAIClient)(nil)
	_ Checker   = (*GenAIClient)(nil)
)

func NewGenAIClient(ctx context.Context, apiKey, embedModel, chatModel string, temperature float64) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}
	if chatModel == "" {
		chatModel = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client:      client,
		embedModel:  embedModel,
		chatModel:   chatModel,
		taskType:    "SEMANTIC_SIMILARITY",
		temperature: float32(temperature),
	}, nil
}

func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends up to genAIBatchSize texts per request.
func (c *GenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += genAIBatchSize {
		end := min(start+genAIBatchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		result, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
			TaskType: c.taskType,
		})
		if err != nil {
			return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
		}

		for _, emb := range result.Embeddings {
			out = append(out, emb.Values)
		}
	}

	if err := checkBatch(c.Name(), len(texts), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions is the default output size of gemini-embedding-001.
func (c *GenAIClient) Dimensions() int {
	return 3072
}

func (c *GenAIClient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel, genai.Text(prompt.User), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	return trimAnswer(resp.Text())
}

func (c *GenAIClient) Ready(ctx context.Context) error {
	if _, err := c.Embed(ctx, "ready"); err != nil {
		return fmt.Errorf("genai not ready: %w", err)
	}
	return nil
}

func (c *GenAIClient) Name() string {
	return fmt.Sprintf("genai:%s/%s", c.embedModel, c.chatModel)
}
