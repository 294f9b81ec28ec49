// Package answerer turns retrieval hits into a grounded natural-language
// answer via an OpenAI-compatible chat model.
package answerer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/config"
	"github.com/fyrsmithlabs/retrieverd/internal/vectorstore"
)

// ErrGenerationFailed indicates the chat model call failed or returned an
// empty completion.
var ErrGenerationFailed = errors.New("answer generation failed")

// Sampling parameters tuned for short grounded support answers.
const (
	genTemperature = 0.4
	genTopP        = 0.92
	genMaxTokens   = 220
)

// Answerer generates an answer for a query given retrieval context.
type Answerer interface {
	Answer(ctx context.Context, query string, results []vectorstore.SearchResult) (string, error)
}

// OpenAIService generates answers via langchaingo's OpenAI client. Works
// with the OpenAI API and any OpenAI-compatible server (vLLM, llama.cpp,
// Ollama).
type OpenAIService struct {
	llm     llms.Model
	logger  *zap.Logger
	metrics *Metrics
	model   string
}

// NewOpenAIService creates an answer generator from generation config.
func NewOpenAIService(cfg config.GenerationConfig, logger *zap.Logger) (*OpenAIService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generation base URL required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless local servers.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &OpenAIService{
		llm:     llm,
		logger:  logger,
		metrics: NewMetrics(logger),
		model:   cfg.Model,
	}, nil
}

// Answer generates a grounded answer from the query and retrieval hits.
// It never invents context: with zero hits the model is told so and is
// expected to decline.
func (s *OpenAIService) Answer(ctx context.Context, query string, results []vectorstore.SearchResult) (string, error) {
	start := time.Now()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildUserPrompt(query, results)),
	}

	resp, err := s.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(genTemperature),
		llms.WithTopP(genTopP),
		llms.WithMaxTokens(genMaxTokens),
	)
	if err != nil {
		s.metrics.RecordGeneration(ctx, s.model, time.Since(start), err)
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		err = fmt.Errorf("%w: model returned empty completion", ErrGenerationFailed)
		s.metrics.RecordGeneration(ctx, s.model, time.Since(start), err)
		return "", err
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	s.metrics.RecordGeneration(ctx, s.model, time.Since(start), nil)
	s.logger.Debug("generated answer",
		zap.String("model", s.model),
		zap.Int("context_docs", len(results)),
		zap.Int("answer_chars", len(answer)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}
