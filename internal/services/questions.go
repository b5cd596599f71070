package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lawq/internal/errorz"
	"lawq/internal/logger"
	"lawq/internal/metrics"
	"lawq/internal/models"
	"lawq/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPageSize = 20

// AnswerOptions 답변 조립 정책
type AnswerOptions struct {
	Categories []string
	AnswerFee  int64
	CacheSize  int
	CacheTTL   time.Duration
	Generation GenerationOptions
}

// QuestionInput 질문 제출 내용
type QuestionInput struct {
	Category   string
	Situation  string
	Body       string
	Visibility models.Visibility
}

// AnswerView 질문 하나의 조회 스냅샷. 답변은 노출 순서로 정렬되어 있다
type AnswerView struct {
	Question models.Question
	Answers  []models.Answer
}

// AnswerService 질문 생애주기와 AI/변호사 답변 조립을 맡는다.
// 질문 단위 변경은 질문 잠금 안에서 직렬화되고, 변호사 답변은 질문 잠금 -> 계정 잠금 순서로 잡는다
type AnswerService struct {
	db         *gorm.DB
	accounts   *AccountService
	locks      *utils.KeyedMutex
	views      *utils.TTLCache[*AnswerView]
	generator  *GenerationDispatcher
	categories map[string]struct{}
	fee        int64
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewAnswerService(gdb *gorm.DB, accounts *AccountService, gateway AnswerGenerationGateway, opts AnswerOptions, log *logger.Logger, m *metrics.Metrics) (*AnswerService, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 500
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	views, err := utils.NewTTLCache[*AnswerView](opts.CacheSize, opts.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create view cache: %w", err)
	}

	categories := make(map[string]struct{}, len(opts.Categories))
	for _, c := range opts.Categories {
		categories[c] = struct{}{}
	}

	s := &AnswerService{
		db:         gdb,
		accounts:   accounts,
		locks:      utils.NewKeyedMutex(),
		views:      views,
		categories: categories,
		fee:        opts.AnswerFee,
		log:        log,
		metrics:    m,
	}
	s.generator = newGenerationDispatcher(gateway, s, opts.Generation, log, m)
	return s, nil
}

// Shutdown 진행 중인 AI 생성이 끝나길 기다린다
func (s *AnswerService) Shutdown(ctx context.Context) error {
	return s.generator.Shutdown(ctx)
}

// SubmitQuestion 질문을 저장하고 AI 답변 생성을 예약한다. 생성 완료를 기다리지 않는다
func (s *AnswerService) SubmitQuestion(ctx context.Context, author models.Requester, in QuestionInput) (string, error) {
	if author.ID == "" {
		return "", errorz.ErrAccessDenied
	}
	if _, ok := s.categories[in.Category]; !ok {
		return "", fmt.Errorf("%w: %q", errorz.ErrInvalidCategory, in.Category)
	}
	if strings.TrimSpace(in.Body) == "" {
		return "", errorz.ErrEmptyBody
	}
	if strings.TrimSpace(in.Situation) == "" {
		return "", fmt.Errorf("%w: situation", errorz.ErrEmptyBody)
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if !in.Visibility.Valid() {
		return "", fmt.Errorf("%w: %q", errorz.ErrInvalidVisibility, in.Visibility)
	}

	q := models.Question{
		AuthorID:   author.ID,
		Category:   in.Category,
		Situation:  strings.TrimSpace(in.Situation),
		Body:       strings.TrimSpace(in.Body),
		Visibility: in.Visibility,
		State:      models.QuestionStateOpen,
		AIStatus:   models.AIStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&q).Error; err != nil {
		return "", err
	}

	s.metrics.QuestionsSubmitted.WithLabelValues(q.Category).Inc()
	s.log.WithQuestion(q.ID).WithField("category", q.Category).Info("question submitted")

	s.scheduleGeneration(ctx, &q)
	return q.ID, nil
}

func (s *AnswerService) scheduleGeneration(ctx context.Context, q *models.Question) {
	ok := s.generator.Schedule(GenerationRequest{
		QuestionID: q.ID,
		Category:   q.Category,
		Situation:  q.Situation,
		Question:   q.Body,
	})
	if ok {
		return
	}
	if err := s.MarkAiUnavailable(ctx, q.ID, errorz.ErrGatewayUnavailable); err != nil {
		s.log.WithQuestion(q.ID).WithError(err).Error("mark ai unavailable failed")
	}
}

// AttachAiAnswer AI 답변을 붙인다. 이미 AI 답변이 있으면 아무것도 하지 않고 false.
// 닫힌 질문에도 붙지만 상태는 바뀌지 않는다
func (s *AnswerService) AttachAiAnswer(ctx context.Context, questionID string, gen Generated) (bool, error) {
	unlock := s.locks.Lock(questionID)
	defer unlock()

	attached := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Question
		if err := tx.First(&q, "id = ?", questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorz.ErrNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.Answer{}).
			Where("question_id = ? AND origin = ?", questionID, models.OriginAI).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		slot := questionID
		answer := models.Answer{
			QuestionID:     questionID,
			AISlot:         &slot,
			Origin:         models.OriginAI,
			Body:           gen.Body,
			Citations:      gen.Citations,
			Model:          gen.Model,
			ApprovalStatus: models.ApprovalApproved,
		}
		if err := tx.Create(&answer).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"ai_status": models.AIStatusReady,
			"ai_error":  "",
		}
		if q.State == models.QuestionStateOpen {
			updates["state"] = models.QuestionStateAIAnswered
		}
		if err := tx.Model(&q).Updates(updates).Error; err != nil {
			return err
		}
		attached = true
		return nil
	})
	if err != nil {
		return false, err
	}

	s.views.Delete(questionID)
	if attached {
		s.log.WithQuestion(questionID).WithField("model", gen.Model).Info("ai answer attached")
	} else {
		s.log.WithQuestion(questionID).Debug("duplicate ai answer ignored")
	}
	return attached, nil
}

// MarkAiUnavailable AI 생성 실패를 기록한다. 질문은 계속 변호사 답변을 받는다
func (s *AnswerService) MarkAiUnavailable(ctx context.Context, questionID string, cause error) error {
	unlock := s.locks.Lock(questionID)
	defer unlock()

	res := s.db.WithContext(ctx).Model(&models.Question{}).
		Where("id = ? AND ai_status <> ?", questionID, models.AIStatusReady).
		Updates(map[string]interface{}{
			"ai_status": models.AIStatusUnavailable,
			"ai_error":  errorz.Code(errorz.ErrAiAnswerUnavailable),
		})
	if res.Error != nil {
		return res.Error
	}
	s.views.Delete(questionID)
	if res.RowsAffected > 0 {
		s.log.WithQuestion(questionID).WithError(cause).Warn("ai answer marked unavailable")
	}
	return nil
}

// SubmitAttorneyAnswer 인증된 변호사의 답변을 붙이고 수수료를 같은 트랜잭션에서 차감한다
func (s *AnswerService) SubmitAttorneyAnswer(ctx context.Context, questionID, attorneyID, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		s.metrics.AttorneyAnswers.WithLabelValues("rejected").Inc()
		return "", errorz.ErrEmptyBody
	}

	unlockQuestion := s.locks.Lock(questionID)
	defer unlockQuestion()
	unlockAccount := s.accounts.locks.Lock(attorneyID)
	defer unlockAccount()

	answerID := uuid.NewString()
	var entry *models.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Question
		if err := tx.First(&q, "id = ?", questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorz.ErrNotFound
			}
			return err
		}
		if !q.AcceptsAnswers() {
			return errorz.ErrQuestionClosed
		}

		var acc models.AttorneyAccount
		if err := tx.First(&acc, "id = ?", attorneyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorz.ErrAttorneyNotVerified
			}
			return err
		}
		if acc.VerificationStatus != models.VerificationVerified {
			return errorz.ErrAttorneyNotVerified
		}
		if acc.Balance < acc.MinBalance {
			return errorz.ErrInsufficientBalance
		}

		author := attorneyID
		answer := models.Answer{
			ID:             answerID,
			QuestionID:     questionID,
			Origin:         models.OriginAttorney,
			AuthorID:       &author,
			Body:           body,
			ApprovalStatus: models.ApprovalPending,
		}
		if err := tx.Create(&answer).Error; err != nil {
			return err
		}

		var err error
		entry, err = debitTx(tx, attorneyID, s.fee, ReasonAnswerFee, &answerID)
		if err != nil {
			return err
		}
		return tx.Model(&q).UpdateColumn("updated_at", time.Now()).Error
	})
	if err != nil {
		s.metrics.AttorneyAnswers.WithLabelValues("rejected").Inc()
		return "", err
	}

	s.views.Delete(questionID)
	s.metrics.AttorneyAnswers.WithLabelValues("accepted").Inc()
	s.metrics.LedgerDebits.Add(float64(s.fee))
	s.log.WithQuestion(questionID).WithFields(logrus.Fields{
		"account_id":    attorneyID,
		"answer_id":     answerID,
		"balance_after": entry.BalanceAfter,
	}).Info("attorney answer submitted")
	return answerID, nil
}

// ListAnswers 읽기 권한을 확인한 뒤 노출 순서의 답변 목록을 돌려준다
func (s *AnswerService) ListAnswers(ctx context.Context, questionID string, requester models.Requester) ([]models.Answer, error) {
	view, err := s.View(ctx, questionID, requester)
	if err != nil {
		return nil, err
	}
	return view.Answers, nil
}

// View 질문과 답변 스냅샷. 호출자는 반환값을 수정해도 캐시에 영향이 없다
func (s *AnswerService) View(ctx context.Context, questionID string, requester models.Requester) (*AnswerView, error) {
	view, err := s.loadView(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !CanReadQuestion(&view.Question, requester) {
		return nil, errorz.ErrAccessDenied
	}
	out := &AnswerView{
		Question: view.Question,
		Answers:  make([]models.Answer, len(view.Answers)),
	}
	copy(out.Answers, view.Answers)
	return out, nil
}

func (s *AnswerService) loadView(ctx context.Context, questionID string) (*AnswerView, error) {
	if v, ok := s.views.Get(questionID); ok {
		return v, nil
	}

	// 캐시 채우기는 질문 잠금 안에서 해야 변경 직후의 무효화와 엇갈리지 않는다
	unlock := s.locks.Lock(questionID)
	defer unlock()
	if v, ok := s.views.Get(questionID); ok {
		return v, nil
	}

	var q models.Question
	if err := s.db.WithContext(ctx).First(&q, "id = ?", questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorz.ErrNotFound
		}
		return nil, err
	}
	var answers []models.Answer
	if err := s.db.WithContext(ctx).
		Where("question_id = ? AND approval_status <> ?", questionID, models.ApprovalRejected).
		Find(&answers).Error; err != nil {
		return nil, err
	}

	view := &AnswerView{Question: q, Answers: OrderAnswers(answers)}
	s.views.Set(questionID, view)
	return view, nil
}

// OrderAnswers AI 답변, 승인된 변호사 답변, 검토 대기 답변 순. 같은 순위는 작성 시각, ID 순이고 거절된 답변은 뺀다
func OrderAnswers(answers []models.Answer) []models.Answer {
	out := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		if a.ApprovalStatus == models.ApprovalRejected {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := answerRank(out[i]), answerRank(out[j])
		if ri != rj {
			return ri < rj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func answerRank(a models.Answer) int {
	switch {
	case a.Origin == models.OriginAI:
		return 0
	case a.ApprovalStatus == models.ApprovalApproved:
		return 1
	default:
		return 2
	}
}

// GetQuestion 읽기 권한이 있는 질문 하나
func (s *AnswerService) GetQuestion(ctx context.Context, questionID string, requester models.Requester) (*models.Question, error) {
	view, err := s.View(ctx, questionID, requester)
	if err != nil {
		return nil, err
	}
	return &view.Question, nil
}

// ListPublicQuestions 보관되지 않은 공개 질문 (최신순). category 가 비면 전체
func (s *AnswerService) ListPublicQuestions(ctx context.Context, category string, page, pageSize int) ([]models.Question, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Question{}).
		Where("visibility = ? AND archived_at IS NULL", models.VisibilityPublic)
	if category != "" {
		if _, ok := s.categories[category]; !ok {
			return nil, 0, fmt.Errorf("%w: %q", errorz.ErrInvalidCategory, category)
		}
		query = query.Where("category = ?", category)
	}
	return paginate(query, page, pageSize)
}

// ListMyQuestions 요청자가 작성한 질문 (보관된 것 포함)
func (s *AnswerService) ListMyQuestions(ctx context.Context, requester models.Requester, page, pageSize int) ([]models.Question, int64, error) {
	if requester.ID == "" {
		return nil, 0, errorz.ErrAccessDenied
	}
	query := s.db.WithContext(ctx).Model(&models.Question{}).Where("author_id = ?", requester.ID)
	return paginate(query, page, pageSize)
}

func paginate(query *gorm.DB, page, pageSize int) ([]models.Question, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultPageSize
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var questions []models.Question
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&questions).Error
	return questions, total, err
}

// SetVisibility 작성자만 공개 범위를 바꾼다
func (s *AnswerService) SetVisibility(ctx context.Context, questionID string, requester models.Requester, visibility models.Visibility) error {
	if !visibility.Valid() {
		return fmt.Errorf("%w: %q", errorz.ErrInvalidVisibility, visibility)
	}
	return s.mutateQuestion(ctx, questionID, func(tx *gorm.DB, q *models.Question) error {
		if q.AuthorID != requester.ID {
			return errorz.ErrAccessDenied
		}
		return tx.Model(q).Update("visibility", visibility).Error
	})
}

// CloseQuestion 작성자 또는 관리자가 질문을 닫는다. 이미 닫혀 있으면 그대로 둔다
func (s *AnswerService) CloseQuestion(ctx context.Context, questionID string, requester models.Requester) error {
	return s.mutateQuestion(ctx, questionID, func(tx *gorm.DB, q *models.Question) error {
		if !isAuthorOrAdmin(q, requester) {
			return errorz.ErrAccessDenied
		}
		return closeTx(tx, q)
	})
}

// Archive 작성자만 보관 처리한다. 보관된 질문은 공개 목록에서 빠지지만 링크로는 읽을 수 있다
func (s *AnswerService) Archive(ctx context.Context, questionID string, requester models.Requester) error {
	return s.mutateQuestion(ctx, questionID, func(tx *gorm.DB, q *models.Question) error {
		if q.AuthorID != requester.ID {
			return errorz.ErrAccessDenied
		}
		if q.ArchivedAt != nil {
			return nil
		}
		return tx.Model(q).Update("archived_at", time.Now()).Error
	})
}

// RetryAiAnswer 생성에 실패한 질문의 AI 답변을 다시 요청한다
func (s *AnswerService) RetryAiAnswer(ctx context.Context, questionID string, requester models.Requester) error {
	var q models.Question
	err := s.mutateQuestion(ctx, questionID, func(tx *gorm.DB, loaded *models.Question) error {
		if !isAuthorOrAdmin(loaded, requester) {
			return errorz.ErrAccessDenied
		}
		if loaded.AIStatus != models.AIStatusUnavailable {
			return fmt.Errorf("%w: ai status %s", errorz.ErrInvalidTransition, loaded.AIStatus)
		}
		if err := tx.Model(loaded).Updates(map[string]interface{}{
			"ai_status": models.AIStatusPending,
			"ai_error":  "",
		}).Error; err != nil {
			return err
		}
		q = *loaded
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithQuestion(questionID).Info("ai answer retry requested")
	s.scheduleGeneration(ctx, &q)
	return nil
}

// ReviewAnswer 관리자가 검토 대기 중인 변호사 답변을 승인 또는 거절한다. 수수료는 환불하지 않는다
func (s *AnswerService) ReviewAnswer(ctx context.Context, answerID string, admin models.Requester, status models.ApprovalStatus) (*models.Answer, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	if status != models.ApprovalApproved && status != models.ApprovalRejected {
		return nil, fmt.Errorf("%w: %q", errorz.ErrInvalidStatus, status)
	}

	var answer models.Answer
	if err := s.db.WithContext(ctx).Select("id", "question_id").First(&answer, "id = ?", answerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorz.ErrNotFound
		}
		return nil, err
	}
	questionID := answer.QuestionID

	unlock := s.locks.Lock(questionID)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&answer, "id = ?", answerID).Error; err != nil {
			return err
		}
		if answer.Origin != models.OriginAttorney || answer.ApprovalStatus != models.ApprovalPending {
			return fmt.Errorf("%w: %s answer is %s", errorz.ErrInvalidTransition, answer.Origin, answer.ApprovalStatus)
		}
		now := time.Now()
		reviewer := admin.ID
		if err := tx.Model(&answer).Updates(map[string]interface{}{
			"approval_status": status,
			"reviewed_by":     &reviewer,
			"reviewed_at":     &now,
		}).Error; err != nil {
			return err
		}
		return tx.First(&answer, "id = ?", answerID).Error
	})
	if err != nil {
		return nil, err
	}

	s.views.Delete(questionID)
	s.log.WithQuestion(questionID).WithFields(logrus.Fields{
		"answer_id": answerID,
		"status":    status,
	}).Info("attorney answer reviewed")
	return &answer, nil
}

// ResumePending 재시작 전에 끝나지 않은 AI 생성을 다시 예약한다
func (s *AnswerService) ResumePending(ctx context.Context) (int, error) {
	var questions []models.Question
	if err := s.db.WithContext(ctx).
		Where("ai_status = ?", models.AIStatusPending).
		Order("created_at ASC").
		Find(&questions).Error; err != nil {
		return 0, err
	}
	for i := range questions {
		s.scheduleGeneration(ctx, &questions[i])
	}
	return len(questions), nil
}

// CloseExpired cutoff 이전에 만들어진 열린 질문을 닫는다
func (s *AnswerService) CloseExpired(ctx context.Context, cutoff time.Time) (int, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Question{}).
		Where("state IN ? AND created_at < ?", []models.QuestionState{models.QuestionStateOpen, models.QuestionStateAIAnswered}, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		changed := false
		err := s.mutateQuestion(ctx, id, func(tx *gorm.DB, q *models.Question) error {
			if !q.AcceptsAnswers() {
				return nil
			}
			if err := closeTx(tx, q); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			return closed, err
		}
		// 커밋까지 끝난 것만 센다
		if changed {
			closed++
		}
	}
	return closed, nil
}

// mutateQuestion 질문 잠금과 트랜잭션 안에서 fn 을 실행하고 캐시를 비운다
func (s *AnswerService) mutateQuestion(ctx context.Context, questionID string, fn func(tx *gorm.DB, q *models.Question) error) error {
	unlock := s.locks.Lock(questionID)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Question
		if err := tx.First(&q, "id = ?", questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorz.ErrNotFound
			}
			return err
		}
		return fn(tx, &q)
	})
	s.views.Delete(questionID)
	return err
}

func closeTx(tx *gorm.DB, q *models.Question) error {
	if q.State == models.QuestionStateClosed {
		return nil
	}
	now := time.Now()
	return tx.Model(q).Updates(map[string]interface{}{
		"state":     models.QuestionStateClosed,
		"closed_at": &now,
	}).Error
}
