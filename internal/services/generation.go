package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lawq/internal/errorz"
	"lawq/internal/logger"
	"lawq/internal/metrics"
)

// GenerationOptions AI 답변 생성 워커와 재시도 설정
type GenerationOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration // 첫 재시도 대기, 이후 두 배씩
	Timeout     time.Duration // 시도 1회 제한 시간
}

func (o GenerationOptions) withDefaults() GenerationOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// generationSink 생성 결과를 받는 쪽
type generationSink interface {
	AttachAiAnswer(ctx context.Context, questionID string, gen Generated) (bool, error)
	MarkAiUnavailable(ctx context.Context, questionID string, cause error) error
}

// GenerationDispatcher 질문별 AI 답변 생성을 비동기로 처리한다.
// 같은 질문은 큐에 한 번만 들어가고, 큐가 가득 차면 Schedule 이 false 를 돌려준다
type GenerationDispatcher struct {
	gateway AnswerGenerationGateway
	sink    generationSink
	opts    GenerationOptions
	log     *logger.Logger
	metrics *metrics.Metrics

	queue   chan GenerationRequest
	pending map[string]bool
	closed  bool
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newGenerationDispatcher(gateway AnswerGenerationGateway, sink generationSink, opts GenerationOptions, log *logger.Logger, m *metrics.Metrics) *GenerationDispatcher {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &GenerationDispatcher{
		gateway: gateway,
		sink:    sink,
		opts:    opts,
		log:     log,
		metrics: m,
		queue:   make(chan GenerationRequest, opts.QueueSize),
		pending: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Schedule 생성 요청을 큐에 넣는다. 이미 대기 중이면 true, 큐가 가득 찼거나 종료 중이면 false
func (d *GenerationDispatcher) Schedule(req GenerationRequest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if d.pending[req.QuestionID] {
		return true
	}

	select {
	case d.queue <- req:
		d.pending[req.QuestionID] = true
		d.metrics.GenerationQueue.Set(float64(len(d.queue)))
		return true
	default:
		d.log.WithQuestion(req.QuestionID).Warn("generation queue full")
		return false
	}
}

// Pending 큐에서 대기 중인 질문 수
func (d *GenerationDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Shutdown 새 요청을 막고 남은 작업을 처리한다. ctx 가 끝나면 진행 중인 호출을 취소한다
func (d *GenerationDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *GenerationDispatcher) worker() {
	defer d.wg.Done()
	for req := range d.queue {
		// 꺼낸 뒤에는 같은 질문을 다시 예약할 수 있다
		d.mu.Lock()
		delete(d.pending, req.QuestionID)
		d.metrics.GenerationQueue.Set(float64(len(d.queue)))
		d.mu.Unlock()

		d.process(req)
	}
}

func (d *GenerationDispatcher) process(req GenerationRequest) {
	log := d.log.WithQuestion(req.QuestionID)
	// 생성이 끝난 결과는 종료 중에도 저장한다
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), 10*time.Second)
	defer cancel()

	gen, err := d.generateWithRetry(req)
	if err != nil {
		if d.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			log.Warn("generation cancelled by shutdown, left pending")
			return
		}
		d.metrics.AIGenerations.WithLabelValues("unavailable").Inc()
		log.WithError(err).Warn("ai answer unavailable")
		if err := d.sink.MarkAiUnavailable(storeCtx, req.QuestionID, err); err != nil {
			log.WithError(err).Error("mark ai unavailable failed")
		}
		return
	}

	attached, err := d.sink.AttachAiAnswer(storeCtx, req.QuestionID, gen)
	if err != nil {
		log.WithError(err).Error("attach ai answer failed")
		return
	}
	if attached {
		d.metrics.AIGenerations.WithLabelValues("attached").Inc()
	} else {
		d.metrics.AIGenerations.WithLabelValues("duplicate").Inc()
	}
}

// generateWithRetry 게이트웨이 오류만 지수 백오프로 재시도한다
func (d *GenerationDispatcher) generateWithRetry(req GenerationRequest) (Generated, error) {
	var lastErr error
	backoff := d.opts.Backoff

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		gen, err := d.generateOnce(req)
		if err == nil {
			return gen, nil
		}
		if d.ctx.Err() != nil {
			return Generated{}, context.Canceled
		}
		lastErr = err
		if !errorz.IsRetryable(err) || attempt == d.opts.MaxAttempts {
			break
		}

		d.metrics.AIGenerations.WithLabelValues("retry").Inc()
		d.log.WithQuestion(req.QuestionID).WithError(err).WithField("attempt", attempt).Debug("retrying generation")

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			return Generated{}, context.Canceled
		}
		backoff *= 2
	}
	return Generated{}, fmt.Errorf("%w: %w", errorz.ErrAiAnswerUnavailable, lastErr)
}

func (d *GenerationDispatcher) generateOnce(req GenerationRequest) (Generated, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
	defer cancel()

	gen, err := d.gateway.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errorz.ErrGatewayTimeout) {
			return Generated{}, fmt.Errorf("%w: %w", errorz.ErrGatewayTimeout, err)
		}
		return Generated{}, err
	}
	if strings.TrimSpace(gen.Body) == "" {
		return Generated{}, fmt.Errorf("%w: empty answer", errorz.ErrGatewayUnavailable)
	}
	return gen, nil
}
