package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/config"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// OpenAIGenerator calls an OpenAI-compatible chat completions API through langchaingo.
type OpenAIGenerator struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// Option configures an OpenAIGenerator.
type Option func(*OpenAIGenerator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *OpenAIGenerator) { g.logger = l }
}

// NewOpenAIGenerator creates a generator for cfg.Model at cfg.Host. An empty API key is sent as
// "none" for local OpenAI-compatible servers.
func NewOpenAIGenerator(cfg config.GenerationConfig, opts ...Option) (*OpenAIGenerator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(apiKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	g := &OpenAIGenerator{client: client, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
	for _, o := range opts {
		o(g)
	}
	g.logger = utils.LoggerOrNop(g.logger).Named("openai-generator")
	return g, nil
}

// Complete implements Generator.
func (g *OpenAIGenerator) Complete(ctx context.Context, req Request) (string, error) {
	g.logger.Debug("generating answer",
		zap.Int("history", len(req.History)), zap.Int("grounding", len(req.Grounding)))
	return g.generate(ctx, BuildMessages(req), g.temperature)
}

// Condense implements Generator. It runs at temperature 0.
func (g *OpenAIGenerator) Condense(ctx context.Context, history []models.Turn, question string) (string, error) {
	out, err := g.generate(ctx, CondenseMessages(history, question), 0)
	if err != nil {
		return "", err
	}
	g.logger.Debug("condensed question", zap.String("question", question), zap.String("standalone", out))
	return out, nil
}

func (g *OpenAIGenerator) generate(ctx context.Context, msgs []llms.MessageContent, temperature float64) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(temperature)}
	if g.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(g.maxTokens))
	}
	resp, err := g.client.GenerateContent(ctx, msgs, callOpts...)
	if err != nil {
		g.logger.Warn("failed to generate content", zap.Error(err))
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) < 1 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
