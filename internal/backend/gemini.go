package backend

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// GeminiBackend implements types.GenerationBackend against the Gemini API.
// All calls pass through the token-bucket limiter; retry is the caller's
// concern (workers and guardrails use WithRetry).
type GeminiBackend struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	limiter     *tokenBucket
}

// Compile-time assertion that GeminiBackend implements GenerationBackend.
var _ types.GenerationBackend = (*GeminiBackend)(nil)

// NewGeminiBackend creates a backend from config.
func NewGeminiBackend(ctx context.Context, cfg config.BackendConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GeminiBackend{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		limiter:     newTokenBucket(cfg.RateLimit, cfg.RateBurst),
	}, nil
}

// Generate performs one generation call.
func (b *GeminiBackend) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := req.ModelHint
	if model == "" {
		model = b.model
	}

	gcfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens > 0 {
		gcfg.MaxOutputTokens = int32(maxTokens)
	}
	temp := req.Temperature
	if temp == 0 {
		temp = b.temperature
	}
	gcfg.Temperature = genai.Ptr(float32(temp))
	if len(req.Stop) > 0 {
		gcfg.StopSequences = req.Stop
	}

	start := time.Now()
	resp, err := b.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), gcfg)
	if err != nil {
		logging.Backend("generate failed after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &types.GenerateResponse{
		Content:      resp.Text(),
		FinishReason: "stop",
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		out.Usage = &types.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	logging.BackendDebug("generate ok model=%s len=%d elapsed=%v", model, len(out.Content), time.Since(start))
	return out, nil
}
