package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/devops"
	"github.com/cloudwego/eino/components/model"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
)

const dashscopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// NewChatModel builds the tool-calling chat model named by cfg.LLMProvider.
// Without an API key it returns ErrNotConfigured.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	apiKey := cfg.LLMAPIKey()
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.LLMProvider {
	case "deepseek":
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("deepseek model: %w", err)
		}
		return cm, nil
	case "openai", "dashscope":
		baseURL := cfg.LLMBaseURL
		if baseURL == "" && cfg.LLMProvider == "dashscope" {
			baseURL = dashscopeBaseURL
		}
		maxTokens := cfg.LLMMaxTokens
		temperature := cfg.LLMTemperature
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     baseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     cfg.LLMTimeout.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("openai model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// InitDebug starts the eino devops server when enabled.
func InitDebug(ctx context.Context, cfg *config.Config) error {
	if !cfg.EinoDebugEnabled {
		return nil
	}
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("init eino devops: %w", err)
	}
	logx.Info("agent: eino devops server started")
	return nil
}
