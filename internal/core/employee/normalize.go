package employee

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// NormalizeEmail は前後の空白を除去し小文字化したメールアドレスを返します。
// 表示名付きの形式は受け付けません。
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if err := validate.Var(trimmed, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(trimmed), nil
}

// NormalizeID は社員 ID を正規化します。空文字列は ErrInvalidID、
// UUID として解釈できない値は該当する行が存在し得ないため ErrEmployeeNotFound を返します。
func NormalizeID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("id: %w", ErrInvalidID)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", ErrEmployeeNotFound
	}
	return parsed.String(), nil
}

// NormalizeName は前後の空白を除去した表示名を返します。
func NormalizeName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidName
	}
	return trimmed, nil
}

// ParseRole は文字列をロールに変換します。空文字列は RoleEmployee です。
func ParseRole(raw string) (Role, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return RoleEmployee, nil
	}
	role := Role(trimmed)
	if !IsValidRole(role) {
		return "", ErrInvalidRole
	}
	return role, nil
}

// IsValidRole は定義済みのロールかどうかを返します。
func IsValidRole(role Role) bool {
	switch role {
	case RoleEmployee, RoleReportingManager, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// NormalizeReference はチーム・上長・会社などの参照 ID を検証します。
// nil または空文字列は参照なしとして nil を返します。
func NormalizeReference(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return nil, ErrInvalidReference
	}
	value := parsed.String()
	return &value, nil
}

// NormalizeOptionalText は空白のみの値を nil として扱います。
func NormalizeOptionalText(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// NormalizeDate は時刻部分を切り捨てた UTC の日付を返します。
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
