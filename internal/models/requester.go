package models

type Role string

const (
	RoleUser   Role = "user"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleLawyer, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Requester 요청 주체. 상위 인증 프론트가 식별한 사용자
type Requester struct {
	ID   string
	Role Role
}

func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}
