package provisioning

import (
	"fmt"

	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
)

// Outcome はプロビジョニングの終端状態です。
type Outcome string

const (
	OutcomeProvisioned         Outcome = "provisioned"
	OutcomeInvalidInput        Outcome = "invalid_input"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeIdentityFailure     Outcome = "identity_failure"
	OutcomeVerificationFailure Outcome = "verification_failure"
	OutcomeDirectoryFailure    Outcome = "directory_failure"
)

// ConflictSide は重複したメールアドレスを保持している側です。
type ConflictSide string

const (
	ConflictNone      ConflictSide = ""
	ConflictIdentity  ConflictSide = "identity"
	ConflictDirectory ConflictSide = "directory"
)

// Code は API 利用者向けの安定した重複コードを返します。
func (c ConflictSide) Code() string {
	switch c {
	case ConflictIdentity:
		return "auth/email-already-exists"
	case ConflictDirectory:
		return "employee/email-already-exists"
	default:
		return ""
	}
}

// Result は 1 回のプロビジョニング呼び出しの結果です。
type Result struct {
	Outcome  Outcome
	Employee *employee.Employee
	Conflict ConflictSide
	// IdentityID はこの呼び出しで作成したアカウントの ID です。作成前に終了した場合は空です。
	IdentityID      string
	Compensated     bool
	CompensationErr error
	Err             error
}

// Succeeded は社員とアカウントの両方が作成された場合に true を返します。
func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeProvisioned
}

// Error は失敗時に *Error を返し、成功時は nil を返します。
func (r *Result) Error() error {
	if r == nil || r.Outcome == OutcomeProvisioned {
		return nil
	}
	return &Error{Outcome: r.Outcome, Conflict: r.Conflict, Err: r.Err}
}

// Error はプロビジョニング失敗を表すエラーです。
type Error struct {
	Outcome  Outcome
	Conflict ConflictSide
	Err      error
}

func (e *Error) Error() string {
	if e.Conflict != ConflictNone {
		return fmt.Sprintf("provisioning: %s (%s): %v", e.Outcome, e.Conflict, e.Err)
	}
	return fmt.Sprintf("provisioning: %s: %v", e.Outcome, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
