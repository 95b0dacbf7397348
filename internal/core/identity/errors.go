package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound はアカウントが存在しない場合に返却されます。
	ErrNotFound = errors.New("identity: not found")
	// ErrEmailAlreadyExists はメールアドレスが既に登録済みの場合に返却されます。
	ErrEmailAlreadyExists = errors.New("identity: email already exists")
)

// FailureKind は認証基盤呼び出しの失敗分類です。
type FailureKind string

const (
	FailureBadRequest    FailureKind = "bad_request"
	FailureUnauthorized  FailureKind = "unauthorized"
	FailureUnprocessable FailureKind = "unprocessable"
	FailureUnavailable   FailureKind = "unavailable"
	FailureTimeout       FailureKind = "timeout"
	FailureNetwork       FailureKind = "network"
	FailureUnexpected    FailureKind = "unexpected"
)

// Failure は分類済みの認証基盤エラーです。
type Failure struct {
	Kind    FailureKind
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	switch {
	case f.Status != 0 && f.Message != "":
		return fmt.Sprintf("identity: %s (status %d): %s", f.Kind, f.Status, f.Message)
	case f.Message != "":
		return fmt.Sprintf("identity: %s: %s", f.Kind, f.Message)
	case f.Err != nil:
		return fmt.Sprintf("identity: %s: %v", f.Kind, f.Err)
	default:
		return fmt.Sprintf("identity: %s", f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf は err に含まれる Failure の分類を返します。Failure でなければ FailureUnexpected です。
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureUnexpected
}

// IsTransient はリトライで回復し得る失敗かどうかを返します。
func IsTransient(err error) bool {
	switch KindOf(err) {
	case FailureUnavailable, FailureTimeout, FailureNetwork:
		return true
	default:
		return false
	}
}
