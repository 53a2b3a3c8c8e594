// Package llm holds LLM backends that are not tied to Google Cloud.
package llm

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	DefaultClaudeModel = "claude-3-5-sonnet-latest"
	defaultMaxTokens   = 4096
)

type ClaudeConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// ClaudeGenerator calls Anthropic models through eino's chat model interface.
type ClaudeGenerator struct {
	chatModel model.BaseChatModel
	modelName string
}

func NewClaudeGenerator(ctx context.Context, cfg ClaudeConfig) (*ClaudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewClaudeGenerator: API key cannot be empty")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	var baseURLPtr *string
	if cfg.BaseURL != "" {
		baseURLPtr = &cfg.BaseURL
	}
	temperature := float32(0)
	chatModel, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     baseURLPtr,
		MaxTokens:   cfg.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create claude chat model: %w", err)
	}
	return NewGenerator(chatModel, cfg.Model), nil
}

// NewGenerator wraps any eino chat model.
func NewGenerator(chatModel model.BaseChatModel, modelName string) *ClaudeGenerator {
	return &ClaudeGenerator{chatModel: chatModel, modelName: modelName}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (*models.Completion, error) {
	resp, err := g.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	})
	if err != nil {
		return nil, fmt.Errorf("generate claude completion failed: %w", err)
	}
	completion := &models.Completion{Text: resp.Content, Model: g.modelName}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		completion.TokensUsed = resp.ResponseMeta.Usage.TotalTokens
	}
	return completion, nil
}
