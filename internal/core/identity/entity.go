package identity

import "time"

// Identity は認証基盤側で管理されるアカウントです。資格情報は保持しません。
type Identity struct {
	ID             string
	Email          string
	Name           string
	Role           string
	EmailConfirmed bool
	CreatedAt      time.Time
}

// CreateInput はアカウント作成時の入力です。
type CreateInput struct {
	Email        string
	Password     string
	Name         string
	Role         string
	EmailConfirm bool
}

// UpdateInput はアカウント更新時の入力です。nil の項目は変更しません。
type UpdateInput struct {
	ID    string
	Email *string
	Name  *string
	Role  *string
}

// IsEmpty は変更項目が無い場合に true を返します。
func (in UpdateInput) IsEmpty() bool {
	return in.Email == nil && in.Name == nil && in.Role == nil
}
