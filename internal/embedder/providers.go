package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Environment fallbacks for API keys
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "hashing-bow-384"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// ProviderOptions carries the settings shared by HTTP providers
type ProviderOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Cache   *Cache
	Limiter *RateLimiter
}

func (o ProviderOptions) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// CompatProvider implements Embedder against an OpenAI-compatible /embeddings endpoint.
// Both OpenAI and Jina AI speak this format.
type CompatProvider struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	dimension  atomic.Int64
	httpClient *http.Client
	cache      *Cache
	limiter    *RateLimiter
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(opts ProviderOptions) (*CompatProvider, error) {
	return newCompatProvider(ProviderOpenAI, EnvOpenAIAPIKey, DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, opts)
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(opts ProviderOptions) (*CompatProvider, error) {
	return newCompatProvider(ProviderJina, EnvJinaAPIKey, DefaultJinaBaseURL, DefaultJinaModel, JinaDimension, opts)
}

func newCompatProvider(name, keyEnv, baseURL, model string, dimension int, opts ProviderOptions) (*CompatProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = lookupEnv(keyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}

	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	p := &CompatProvider{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: opts.httpClient(),
		cache:      opts.Cache,
		limiter:    opts.Limiter,
	}
	if opts.Model != "" && opts.Model != model {
		// Unknown until the first response
		p.model = opts.Model
		dimension = 0
	}
	p.dimension.Store(int64(dimension))

	return p, nil
}

func (p *CompatProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	if p.cache != nil {
		if emb, ok := p.cache.Get(cacheKey(model, req.Text)); ok {
			return emb, nil
		}
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *CompatProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([]*Embedding, error) {
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.name, err)
	}

	for i, emb := range embeddings {
		emb.Hash = ComputeHash(req.Texts[i])
		if p.cache != nil {
			p.cache.Set(cacheKey(model, req.Texts[i]), emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *CompatProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp, p.limiter); err != nil {
		return nil, err
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vector := NormalizeVector(data.Embedding)
		embeddings[i] = &Embedding{
			Vector:    vector,
			Dimension: len(vector),
			Provider:  p.name,
			Model:     model,
		}
	}
	if len(embeddings) > 0 {
		p.dimension.Store(int64(embeddings[0].Dimension))
	}

	return embeddings, nil
}

// checkStatus maps HTTP failures to retryable or permanent errors
func checkStatus(resp *http.Response, limiter *RateLimiter) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		seconds, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		limiter.RecordRateLimitError(time.Duration(seconds) * time.Second)
		return err
	case resp.StatusCode >= 500:
		return err
	default:
		return permanent(err)
	}
}

func (p *CompatProvider) Dimension() int {
	return int(p.dimension.Load())
}

func (p *CompatProvider) Provider() string {
	return p.name
}

func (p *CompatProvider) Model() string {
	return p.model
}

func (p *CompatProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
