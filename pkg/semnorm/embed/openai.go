package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
	"github.com/cognicore/semnorm/pkg/semnorm/vecmath"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string // e.g. "https://api.openai.com/v1" or a local inference server
	APIKey     string // optional for local endpoints
	Model      string
	Dimensions int // requested output size, 0 keeps the model default
	BatchSize  int
	MaxRetries uint64
	HTTPClient *http.Client
}

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	dims   int
	logger *zap.Logger
}

// NewOpenAIProvider creates the provider and performs a warm-up request so a
// missing or misconfigured model fails at startup rather than mid-request.
func NewOpenAIProvider(ctx context.Context, cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("embed: base URL and model required: %w", internalerr.ErrProviderUnavailable)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger.Named("embed"),
	}

	warm, err := p.Embed(ctx, []string{"warm-up"})
	if err != nil {
		return nil, fmt.Errorf("embed: load model %q: %v: %w", cfg.Model, err, internalerr.ErrProviderUnavailable)
	}
	p.dims = len(warm[0])
	p.logger.Info("embedding model ready",
		zap.String("model", cfg.Model),
		zap.Int("dimensions", p.dims))
	return p, nil
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, batch []string) ([]Vector, error) {
	req := openai.EmbeddingRequest{
		Input:      batch,
		Model:      openai.EmbeddingModel(p.cfg.Model),
		Dimensions: p.cfg.Dimensions,
	}

	var resp openai.EmbeddingResponse
	op := func() error {
		r, err := p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			p.logger.Warn("embedding request failed, retrying",
				zap.Int("batch", len(batch)),
				zap.Error(err))
			return err
		}
		resp = r
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(resp.Data), len(batch))
	}
	out := make([]Vector, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("embed: response index %d out of range", d.Index)
		}
		v := make(Vector, len(d.Embedding))
		copy(v, d.Embedding)
		out[d.Index] = vecmath.Normalize(v)
	}
	return out, nil
}

// isPermanent reports client errors that retrying cannot fix.
func isPermanent(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}
	return false
}

// Dimensions implements Provider.
func (p *OpenAIProvider) Dimensions() int { return p.dims }

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai:" + p.cfg.Model }
