package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"lawq/internal/config"
	"lawq/internal/db"
	"lawq/internal/logger"
	"lawq/internal/metrics"
	"lawq/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	asker    = models.Requester{ID: "asker-1", Role: models.RoleUser}
	stranger = models.Requester{ID: "stranger", Role: models.RoleUser}
	admin    = models.Requester{ID: "admin-1", Role: models.RoleAdmin}
)

// fakeGateway 호출 순번별로 결과를 정한다
type fakeGateway struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req GenerationRequest) (Generated, error)
}

func (g *fakeGateway) Generate(ctx context.Context, req GenerationRequest) (Generated, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	return g.fn(call, req)
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func answerWith(body string) *fakeGateway {
	return &fakeGateway{fn: func(int, GenerationRequest) (Generated, error) {
		return Generated{Body: body, Model: "fake"}, nil
	}}
}

// blockingGateway Release 전까지 응답하지 않는다
type blockingGateway struct {
	body    string
	release chan struct{}
	once    sync.Once
	started chan string
}

func newBlockingGateway(body string) *blockingGateway {
	return &blockingGateway{body: body, release: make(chan struct{}), started: make(chan string, 16)}
}

func (g *blockingGateway) Generate(ctx context.Context, req GenerationRequest) (Generated, error) {
	select {
	case g.started <- req.QuestionID:
	default:
	}
	select {
	case <-g.release:
		return Generated{Body: g.body, Model: "fake"}, nil
	case <-ctx.Done():
		return Generated{}, ctx.Err()
	}
}

func (g *blockingGateway) Release() {
	g.once.Do(func() { close(g.release) })
}

type testEnv struct {
	db       *gorm.DB
	accounts *AccountService
	answers  *AnswerService
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, gw AnswerGenerationGateway, tweaks ...func(*AnswerOptions)) *testEnv {
	t.Helper()

	gdb, err := db.OpenMemory()
	require.NoError(t, err)

	log := logger.Discard()
	m := metrics.New()
	accounts := NewAccountService(gdb, 5000, log, m)

	opts := AnswerOptions{
		Categories: config.DefaultCategories,
		AnswerFee:  3000,
		Generation: GenerationOptions{
			Workers:     2,
			QueueSize:   16,
			MaxAttempts: 3,
			Backoff:     time.Millisecond,
			Timeout:     time.Second,
		},
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}

	answers, err := NewAnswerService(gdb, accounts, gw, opts, log, m)
	require.NoError(t, err)

	t.Cleanup(func() {
		if r, ok := gw.(interface{ Release() }); ok {
			r.Release()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = answers.Shutdown(ctx)
	})

	return &testEnv{db: gdb, accounts: accounts, answers: answers, metrics: m}
}

func (e *testEnv) seedAttorney(t *testing.T, id string, status models.VerificationStatus, balance int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.AttorneyAccount{
		ID:                 id,
		Name:               id,
		VerificationStatus: status,
		Balance:            balance,
		MinBalance:         5000,
	}).Error)
}

func (e *testEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	var acc models.AttorneyAccount
	require.NoError(t, e.db.First(&acc, "id = ?", id).Error)
	return acc.Balance
}

func (e *testEnv) submit(t *testing.T, visibility models.Visibility) string {
	t.Helper()
	id, err := e.answers.SubmitQuestion(context.Background(), asker, QuestionInput{
		Category:   "임대차",
		Situation:  "다음 달 전세 계약을 앞두고 있습니다.",
		Body:       "확정일자는 언제 받아야 하나요?",
		Visibility: visibility,
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) waitState(t *testing.T, id string, state models.QuestionState) {
	t.Helper()
	require.Eventually(t, func() bool {
		q, err := e.answers.GetQuestion(context.Background(), id, admin)
		return err == nil && q.State == state
	}, 3*time.Second, 10*time.Millisecond)
}

func (e *testEnv) waitAIStatus(t *testing.T, id string, status models.AIStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		q, err := e.answers.GetQuestion(context.Background(), id, admin)
		return err == nil && q.AIStatus == status
	}, 3*time.Second, 10*time.Millisecond)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
