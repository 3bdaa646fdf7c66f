package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions matches the vector(1536) chunk column
	DefaultEmbeddingDimensions = 1536
	// DefaultTimeout bounds a single provider call
	DefaultTimeout = 30 * time.Second
)

// ErrEmptyText is returned when one of the inputs is empty
var ErrEmptyText = domain.NewDomainError(domain.ErrCodeValidation, "embedding input text cannot be empty")

// EmbeddingResponse is the provider's answer to one embeddings request.
type EmbeddingResponse struct {
	Vectors      [][]float32
	PromptTokens int
}

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) (*EmbeddingResponse, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api        EmbeddingAPI
	hasKey     bool
	model      string
	dimensions int
	timeout    time.Duration
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(apiKey, baseURL string, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) (*EmbeddingResponse, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	}
	// ada-002 rejects the dimensions parameter
	if a.model != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}

	return &EmbeddingResponse{
		Vectors:      vectors,
		PromptTokens: resp.Usage.PromptTokens,
	}, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	model := cfg.EmbeddingModel
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, openai.EmbeddingModel(model), dimensions),
		hasKey:     cfg.APIKey != "",
		model:      model,
		dimensions: dimensions,
		timeout:    timeout,
	}
}

// Model returns the embedding model name stored alongside every vector.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the expected vector length.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// CreateEmbeddings embeds texts in one provider call. The result has exactly
// one vector per input, in input order, or an error.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) (*domain.Embeddings, error) {
	if !c.hasKey {
		return nil, domain.ErrEmbeddingCredentials
	}
	if len(texts) == 0 {
		return &domain.Embeddings{Vectors: [][]float32{}, Model: c.model}, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(callCtx, texts)
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrEmbeddingCount, len(resp.Vectors), len(texts))
	}
	for _, v := range resp.Vectors {
		if len(v) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrWrongDimensions, len(v), c.dimensions)
		}
	}

	return &domain.Embeddings{
		Vectors: resp.Vectors,
		Tokens:  resp.PromptTokens,
		Model:   c.model,
	}, nil
}

// classifyError separates credential problems, which retrying cannot fix,
// from transient provider failures.
func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "embedding provider rejected credentials", err)
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeProvider, "failed to create embeddings", err)
}
