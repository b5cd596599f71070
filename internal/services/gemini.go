package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lawq/internal/errorz"

	"google.golang.org/genai"
)

// GeminiGateway Gemini API 로 답변을 생성한다
type GeminiGateway struct {
	client    *genai.Client
	model     string
	retriever Retriever
	topK      int
}

func NewGeminiGateway(ctx context.Context, apiKey, model string, retriever Retriever, topK int) (*GeminiGateway, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGateway{client: client, model: model, retriever: retriever, topK: topK}, nil
}

func (g *GeminiGateway) Generate(ctx context.Context, req GenerationRequest) (Generated, error) {
	chunks := retrieveFor(ctx, g.retriever, req, g.topK)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(req, chunks)), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Generated{}, fmt.Errorf("%w: %v", errorz.ErrGatewayTimeout, err)
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Generated{}, fmt.Errorf("%w: %v", statusError(apiErr.Code), err)
		}
		return Generated{}, fmt.Errorf("%w: %v", errorz.ErrGatewayUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Generated{}, fmt.Errorf("%w: empty response", errorz.ErrGatewayUnavailable)
	}
	return parseModelAnswer(text, chunks, g.model), nil
}
