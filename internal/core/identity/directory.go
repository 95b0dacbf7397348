package identity

import "context"

// Directory は外部認証基盤の管理 API を表すポートです。
type Directory interface {
	Create(ctx context.Context, in CreateInput) (*Identity, error)
	Get(ctx context.Context, id string) (*Identity, error)
	Update(ctx context.Context, in UpdateInput) (*Identity, error)
	// Delete は存在しない ID に対して ErrNotFound を返します。
	Delete(ctx context.Context, id string) error
	FindByEmail(ctx context.Context, email string) (*Identity, error)
}
