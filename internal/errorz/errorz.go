package errorz

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 입력 검증
	ErrInvalidCategory   = errors.New("invalid category")
	ErrEmptyBody         = errors.New("empty body")
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidStatus     = errors.New("invalid status")

	// 리소스 상태
	ErrQuestionClosed      = errors.New("question closed")
	ErrAttorneyNotVerified = errors.New("attorney not verified")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccessDenied        = errors.New("access denied")
	ErrInvalidTransition   = errors.New("invalid transition")

	// AI 답변 생성
	ErrAiAnswerUnavailable = errors.New("ai answer unavailable")
	ErrGatewayTimeout      = errors.New("gateway timeout")
	ErrGatewayUnavailable  = errors.New("gateway unavailable")
	// 요청 자체가 거절됨(인증, 잘못된 모델 등). 다시 보내도 같다
	ErrGatewayRejected = errors.New("gateway rejected")
)

// Code 는 API 응답에 쓰이는 안정적인 에러 코드를 반환합니다.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidCategory):
		return "InvalidCategory"
	case errors.Is(err, ErrEmptyBody):
		return "EmptyBody"
	case errors.Is(err, ErrInvalidVisibility):
		return "InvalidVisibility"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInvalidStatus):
		return "InvalidStatus"
	case errors.Is(err, ErrQuestionClosed):
		return "QuestionClosed"
	case errors.Is(err, ErrAttorneyNotVerified):
		return "AttorneyNotVerified"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrAccessDenied):
		return "AccessDenied"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrAiAnswerUnavailable):
		return "AiAnswerUnavailable"
	case errors.Is(err, ErrGatewayTimeout):
		return "GatewayTimeout"
	case errors.Is(err, ErrGatewayUnavailable):
		return "GatewayUnavailable"
	case errors.Is(err, ErrGatewayRejected):
		return "GatewayRejected"
	}
	return "Internal"
}

// IsRetryable 게이트웨이 오류만 재시도 대상이다.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable)
}
