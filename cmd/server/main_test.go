package main

import (
	"context"
	"testing"

	"lawq/internal/config"
	"lawq/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateway(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{RAG: config.RAGConfig{TopK: 3}}

	cfg.LLM.Provider = "mock"
	gw, err := newGateway(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &services.MockGateway{}, gw)

	cfg.LLM = config.LLMConfig{Provider: "openai", BaseURL: "http://llm.local/v1", Model: "test-model"}
	gw, err = newGateway(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &services.OpenAIGateway{}, gw)

	cfg.LLM.Provider = "claude"
	_, err = newGateway(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
}
