package employee

import "context"

// Repository は社員ディレクトリ永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, employee *Employee) (*Employee, error)
	Update(ctx context.Context, employee *Employee) (*Employee, error)
	// Delete は削除した行を返します。存在しなければ ErrEmployeeNotFound です。
	Delete(ctx context.Context, id string) (*Employee, error)
	FindByID(ctx context.Context, id string) (*Employee, error)
	// FindByIDForUpdate はトランザクション終了まで行をロックして取得します。
	FindByIDForUpdate(ctx context.Context, id string) (*Employee, error)
	// FindByEmail は大文字小文字を区別せずに検索します。
	FindByEmail(ctx context.Context, email string) (*Employee, error)
	List(ctx context.Context, filter ListEmployeesFilter) ([]*Employee, string, error)
}

// ListEmployeesFilter は一覧取得用フィルタです。
type ListEmployeesFilter struct {
	CompanyID *string
	TeamID    *string
	Role      *Role
	IsActive  *bool
	Limit     int
	Offset    int
}
