package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lawq/internal/errorz"
	"lawq/internal/models"
)

// GenerationRequest AI 답변 생성 입력
type GenerationRequest struct {
	QuestionID string
	Category   string
	Situation  string
	Question   string
}

// Generated 게이트웨이가 돌려준 AI 답변
type Generated struct {
	Body      string
	Citations []models.Citation
	Model     string
}

// AnswerGenerationGateway 외부 AI 답변 생성기.
// 실패는 errorz.ErrGatewayTimeout, errorz.ErrGatewayUnavailable, errorz.ErrGatewayRejected 중 하나로 감싸서 돌려준다
type AnswerGenerationGateway interface {
	Generate(ctx context.Context, req GenerationRequest) (Generated, error)
}

// Retriever 질문과 관련된 법령 조각을 찾는다
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]RetrievedChunk, error)
}

type RetrievedChunk struct {
	DocumentID string
	Title      string
	ChunkIndex int
	Content    string
	Score      float64
}

// Query 검색에 쓸 질의문
func (r GenerationRequest) Query() string {
	return strings.Join([]string{r.Category, r.Situation, r.Question}, " ")
}

// MockGateway 외부 모델 없이 고정 형식의 답변을 만든다. 로컬 실행과 데모용
type MockGateway struct {
	Delay     time.Duration
	Retriever Retriever
	TopK      int
}

func (g *MockGateway) Generate(ctx context.Context, req GenerationRequest) (Generated, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return Generated{}, fmt.Errorf("%w: %v", errorz.ErrGatewayTimeout, ctx.Err())
		}
	}

	var chunks []RetrievedChunk
	if g.Retriever != nil {
		var err error
		chunks, err = g.Retriever.Retrieve(ctx, req.Query(), g.TopK)
		if err != nil {
			return Generated{}, fmt.Errorf("%w: retrieve: %v", errorz.ErrGatewayUnavailable, err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] 질문에 대한 참고 답변입니다.\n\n", req.Category)
	if len(chunks) > 0 {
		b.WriteString("관련 법령을 확인해 보면 다음 내용이 적용될 수 있습니다.\n")
		for _, c := range chunks {
			fmt.Fprintf(&b, "- %s: %s\n", c.Title, excerpt(c.Content, 80))
		}
		b.WriteString("\n")
	}
	b.WriteString("구체적인 사실관계에 따라 결론이 달라질 수 있으니 변호사 답변을 함께 확인하세요.")

	return Generated{
		Body:      b.String(),
		Citations: citationsFrom(chunks),
		Model:     "mock",
	}, nil
}

func citationsFrom(chunks []RetrievedChunk) []models.Citation {
	out := make([]models.Citation, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, models.Citation{
			DocumentID: c.DocumentID,
			Title:      c.Title,
			ChunkIndex: c.ChunkIndex,
			Excerpt:    excerpt(c.Content, 200),
		})
	}
	return out
}

// excerpt 앞에서부터 n 글자(rune)
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
