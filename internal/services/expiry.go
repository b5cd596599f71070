package services

import (
	"context"
	"time"

	"lawq/internal/logger"
)

// ExpirySweeper 오래된 열린 질문을 주기적으로 닫는다
type ExpirySweeper struct {
	answers  *AnswerService
	ttl      time.Duration
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewExpirySweeper(answers *AnswerService, ttl, interval time.Duration, log *logger.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{
		answers:  answers,
		ttl:      ttl,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run 시작 직후 한 번, 이후 interval 마다 실행한다. ttl 이 0 이면 바로 돌아온다
func (s *ExpirySweeper) Run(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep 만료된 질문을 한 번 정리하고 닫은 개수를 돌려준다
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)
	n, err := s.answers.CloseExpired(ctx, cutoff)
	if err != nil && ctx.Err() == nil {
		s.log.WithError(err).Error("close expired questions failed")
	}
	if n > 0 {
		s.log.WithField("closed", n).Info("expired questions closed")
	}
	return n
}
