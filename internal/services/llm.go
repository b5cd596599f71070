package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lawq/internal/errorz"
)

const answerPromptTemplate = `당신은 한국 부동산 법률 상담을 돕는 AI 어시스턴트입니다.
아래 참고 법령만을 근거로 질문에 답하세요.

[참고 법령]
%s

[분야] %s
[상황]
%s

[질문]
%s

다음 규칙을 지키세요.
1. 참고 법령에 없는 내용은 추측하지 말고 "제공된 법령 정보로는 확인할 수 없습니다"라고 쓰세요.
2. 근거로 삼은 법령명과 조항을 본문에 적으세요.
3. 법률 자문이 아니라는 점을 밝히고 변호사 상담을 권하세요.

응답은 다음 JSON 한 개로만 작성하세요.
{"answer": "답변 본문(markdown)", "sources": [근거로 쓴 참고 법령 번호]}`

// buildPrompt 질문과 검색된 법령 조각으로 프롬프트를 만든다. 법령 조각에는 1부터 번호를 붙인다
func buildPrompt(req GenerationRequest, chunks []RetrievedChunk) string {
	var refs strings.Builder
	if len(chunks) == 0 {
		refs.WriteString("(등록된 참고 법령 없음)")
	}
	for i, c := range chunks {
		fmt.Fprintf(&refs, "[%d] %s\n%s\n\n", i+1, c.Title, strings.TrimSpace(c.Content))
	}
	situation := strings.TrimSpace(req.Situation)
	if situation == "" {
		situation = "(없음)"
	}
	return fmt.Sprintf(answerPromptTemplate, strings.TrimSpace(refs.String()), req.Category, situation, req.Question)
}

type modelAnswer struct {
	Answer  string `json:"answer"`
	Sources []int  `json:"sources"`
}

// parseModelAnswer 모델 응답(JSON)을 답변으로 바꾼다. JSON 이 아니면 원문을 본문으로 쓰고 검색된 조각 전부를 근거로 단다
func parseModelAnswer(content string, chunks []RetrievedChunk, model string) Generated {
	content = strings.TrimSpace(content)
	raw := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(content, "```json"), "```"), "```")

	var parsed modelAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil || strings.TrimSpace(parsed.Answer) == "" {
		return Generated{Body: content, Citations: citationsFrom(chunks), Model: model}
	}

	cited := make([]RetrievedChunk, 0, len(parsed.Sources))
	seen := make(map[int]bool, len(parsed.Sources))
	for _, n := range parsed.Sources {
		if n < 1 || n > len(chunks) || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, chunks[n-1])
	}
	return Generated{
		Body:      strings.TrimSpace(parsed.Answer),
		Citations: citationsFrom(cited),
		Model:     model,
	}
}

// retrieveFor 검색기가 없거나 실패하면 참고 법령 없이 진행한다
func retrieveFor(ctx context.Context, r Retriever, req GenerationRequest, k int) []RetrievedChunk {
	if r == nil || k <= 0 {
		return nil
	}
	chunks, err := r.Retrieve(ctx, req.Query(), k)
	if err != nil {
		return nil
	}
	return chunks
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIGateway OpenAI 호환 chat completions API 를 쓰는 게이트웨이
type OpenAIGateway struct {
	baseURL   string
	token     string
	model     string
	client    *http.Client
	retriever Retriever
	topK      int
}

func NewOpenAIGateway(baseURL, token, model string, retriever Retriever, topK int) *OpenAIGateway {
	return &OpenAIGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		model:     model,
		client:    &http.Client{Timeout: 2 * time.Minute},
		retriever: retriever,
		topK:      topK,
	}
}

func (g *OpenAIGateway) Generate(ctx context.Context, req GenerationRequest) (Generated, error) {
	chunks := retrieveFor(ctx, g.retriever, req, g.topK)

	payload, err := json.Marshal(ChatRequest{
		Model: g.model,
		Messages: []ChatMessage{
			{Role: "user", Content: buildPrompt(req, chunks)},
		},
		Temperature:    0.1,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Generated{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Generated{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Generated{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Generated{}, classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return Generated{}, fmt.Errorf("%w: status %d: %s", statusError(resp.StatusCode), resp.StatusCode, excerpt(string(body), 200))
	}

	var chat ChatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return Generated{}, fmt.Errorf("%w: decode response: %v", errorz.ErrGatewayUnavailable, err)
	}
	if len(chat.Choices) == 0 {
		return Generated{}, fmt.Errorf("%w: no choices", errorz.ErrGatewayUnavailable)
	}
	return parseModelAnswer(chat.Choices[0].Message.Content, chunks, g.model), nil
}

// statusError 408/429 를 뺀 4xx 는 설정 문제라 재시도하지 않는다
func statusError(code int) error {
	switch {
	case code == http.StatusRequestTimeout:
		return errorz.ErrGatewayTimeout
	case code == http.StatusTooManyRequests:
		return errorz.ErrGatewayUnavailable
	case code >= 400 && code < 500:
		return errorz.ErrGatewayRejected
	}
	return errorz.ErrGatewayUnavailable
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errorz.ErrGatewayTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", errorz.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", errorz.ErrGatewayUnavailable, err)
}
