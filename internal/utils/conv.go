package utils

import (
	"strconv"
	"strings"
)

// StringToInt converts string to int, returns 0 if error
func StringToInt(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

// PositiveInt 쿼리 파라미터용. 양수가 아니면 fallback
func PositiveInt(s string, fallback int) int {
	if i := StringToInt(s); i > 0 {
		return i
	}
	return fallback
}
