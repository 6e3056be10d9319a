package analyzer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/psilva81/inferq/pkg/models"
	"github.com/psilva81/inferq/pkg/retry"
)

// Config holds model endpoint settings for the analyzer.
type Config struct {
	EndpointURL    string
	Model          string
	APIKey         string
	SystemPrompt   string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheSize      int
	Retry          retry.Config
}

// DefaultConfig returns analyzer defaults pointed at a local
// OpenAI-compatible serving endpoint.
func DefaultConfig() *Config {
	return &Config{
		EndpointURL: "http://localhost:8000/v1/chat/completions",
		Model:       "gpt-4o-mini",
		SystemPrompt: "You are an analysis engine. Summarize the submitted content, " +
			"call out notable findings, and answer in plain text.",
		Temperature:    0.2,
		MaxTokens:      1024,
		RequestTimeout: 60 * time.Second,
		CacheTTL:       15 * time.Minute,
		CacheSize:      256,
		Retry:          retry.DefaultConfig(),
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return errors.New("endpoint_url is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.CacheSize < 0 {
		return errors.New("cache_size cannot be negative")
	}
	return nil
}

// Analyzer executes analysis requests against an OpenAI-compatible chat
// completions endpoint, with retries for transient failures and a content
// cache for repeated payloads.
type Analyzer struct {
	config     *Config
	httpClient *http.Client
	cache      *resultCache
}

// New creates an analyzer. A nil config uses defaults.
func New(cfg *Config) (*Analyzer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer config: %w", err)
	}
	return &Analyzer{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache: newResultCache(cfg.CacheSize, cfg.CacheTTL),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Analyze runs one request through the model endpoint. Identical payloads
// within the cache TTL are served from memory without a model call.
func (a *Analyzer) Analyze(ctx context.Context, req models.RequestSnapshot) (*models.AnalysisResult, error) {
	key := a.cacheKey(req)
	if cached, ok := a.cache.get(key); ok {
		log.Printf("[Analyzer] Cache hit for request %s", req.ID)
		if cached.Counters == nil {
			cached.Counters = make(map[string]float64)
		}
		cached.Counters["cache_hit"] = 1
		return cached, nil
	}

	data, err := json.Marshal(chatRequest{
		Model:       a.config.Model,
		Messages:    a.buildMessages(req),
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	var result *models.AnalysisResult
	err = retry.Do(ctx, a.config.Retry, func() error {
		var callErr error
		result, callErr = a.callEndpoint(ctx, data)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	a.cache.put(key, result)
	return result, nil
}

func (a *Analyzer) callEndpoint(ctx context.Context, body []byte) (*models.AnalysisResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("model endpoint returned no choices")
	}

	model := completion.Model
	if model == "" {
		model = a.config.Model
	}
	return &models.AnalysisResult{
		Summary: completion.Choices[0].Message.Content,
		Model:   model,
		Counters: map[string]float64{
			"prompt_tokens":     float64(completion.Usage.PromptTokens),
			"completion_tokens": float64(completion.Usage.CompletionTokens),
			"total_tokens":      float64(completion.Usage.TotalTokens),
		},
	}, nil
}

func (a *Analyzer) buildMessages(req models.RequestSnapshot) []chatMessage {
	content := req.Payload
	if len(req.Metadata) > 0 {
		keys := make([]string, 0, len(req.Metadata))
		for k := range req.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString(content)
		sb.WriteString("\n\nContext:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s: %s\n", k, req.Metadata[k])
		}
		content = sb.String()
	}

	return []chatMessage{
		{Role: "system", Content: a.config.SystemPrompt},
		{Role: "user", Content: content},
	}
}

// cacheKey hashes everything that shapes the prompt, so metadata changes miss
// the cache even for identical payloads.
func (a *Analyzer) cacheKey(req models.RequestSnapshot) string {
	h := sha256.New()
	io.WriteString(h, a.config.Model)
	h.Write([]byte{0})
	io.WriteString(h, req.Payload)

	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		io.WriteString(h, k)
		h.Write([]byte{0})
		io.WriteString(h, req.Metadata[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}
