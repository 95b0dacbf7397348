package employee

import "time"

// Role は社員の権限ロールです。
type Role string

const (
	RoleEmployee         Role = "employee"
	RoleReportingManager Role = "reporting_manager"
	RoleAdmin            Role = "admin"
	RoleSuperAdmin       Role = "super_admin"
)

// Employee は社員ディレクトリの 1 行を表します。ID は認証基盤側のアカウント ID と一致します。
type Employee struct {
	ID                 string
	Email              string
	Name               string
	Role               Role
	Department         *string
	Position           *string
	TeamID             *string
	ReportingManagerID *string
	CompanyID          *string
	HireDate           time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
