package ai

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const openAIBatchSize = 256

// openAIEmbeddingDims holds the default output sizes of the hosted models.
// Other models report their size once the first embedding comes back.
var openAIEmbeddingDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIClient serves both embeddings and chat completions. A base URL
// lets it talk to any OpenAI-compatible server.
type OpenAIClient struct {
	client      openai.Client
	embedModel  string
	chatModel   string
	temperature float64
	dims        atomic.Int64
}

var (
	_ Embedder  = (*OpenAIClient)(nil)
	_ Generator = (*OpenAIClient)(nil)
	_ Checker   = (*OpenAIClient)(nil)
)

func NewOpenAIClient(apiKey, baseURL, embedModel, chatModel string, temperature float64, opts ...option.RequestOption) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}

	c := &OpenAIClient{
		client:      openai.NewClient(reqOpts...),
		embedModel:  embedModel,
		chatModel:   chatModel,
		temperature: temperature,
	}
	c.dims.Store(int64(openAIEmbeddingDims[embedModel]))
	return c
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		end := min(start+openAIBatchSize, len(texts))
		batch := texts[start:end]

		response, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model:          openai.EmbeddingModel(c.embedModel),
			Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings request failed: %w", err)
		}

		vectors := make([][]float32, len(batch))
		for _, item := range response.Data {
			if item.Index < 0 || int(item.Index) >= len(batch) {
				return nil, fmt.Errorf("openai embedding index %d out of range", item.Index)
			}
			vec := make([]float32, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float32(v)
			}
			vectors[item.Index] = vec
		}
		for i, v := range vectors {
			if v == nil {
				return nil, fmt.Errorf("openai returned no embedding for input %d", start+i)
			}
		}
		out = append(out, vectors...)
	}

	if err := checkBatch(c.Name(), len(texts), out); err != nil {
		return nil, err
	}
	c.dims.Store(int64(len(out[0])))
	return out, nil
}

// Dimensions is the size of the last embedding returned, or the model's
// known default before any request. Zero means unknown.
func (c *OpenAIClient) Dimensions() int {
	return int(c.dims.Load())
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.chatModel),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return trimAnswer(response.Choices[0].Message.Content)
}

// Ready sends a one-word embedding request.
func (c *OpenAIClient) Ready(ctx context.Context) error {
	if _, err := c.Embed(ctx, "ready"); err != nil {
		return fmt.Errorf("openai not ready: %w", err)
	}
	return nil
}

func (c *OpenAIClient) Name() string {
	return fmt.Sprintf("openai:%s/%s", c.embedModel, c.chatModel)
}
