package employee

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ogurasousui/codex-hr-provisioning/internal/core/identity"
	"github.com/sirupsen/logrus"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
)

// Service は社員の参照・更新・削除に関するユースケースをまとめます。
// 作成は認証基盤との整合が必要なため provisioning パッケージが担当します。
type Service struct {
	repo      Repository
	directory identity.Directory
	clock     Clock
	tx        TransactionManager
	log       logrus.FieldLogger
}

// UseCase は社員ユースケースの公開インターフェースです。
type UseCase interface {
	GetEmployee(ctx context.Context, in GetEmployeeInput) (*Employee, error)
	ListEmployees(ctx context.Context, in ListEmployeesInput) (*ListEmployeesResult, error)
	UpdateEmployee(ctx context.Context, in UpdateEmployeeInput) (*Employee, error)
	DeleteEmployee(ctx context.Context, in DeleteEmployeeInput) (*Employee, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, directory identity.Directory, clock Clock, tx TransactionManager, log logrus.FieldLogger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, directory: directory, clock: clock, tx: tx, log: log}
}

// UpdateEmployeeInput は社員更新時の入力です。nil の項目は変更しません。
// Department などの任意項目は空文字列で値を消去します。
type UpdateEmployeeInput struct {
	ID                 string
	Name               *string
	Email              *string
	Role               *Role
	Department         *string
	Position           *string
	TeamID             *string
	ReportingManagerID *string
	HireDate           *time.Time
	IsActive           *bool
}

// DeleteEmployeeInput は社員削除時の入力です。
type DeleteEmployeeInput struct {
	ID string
}

// GetEmployeeInput は社員取得時の入力です。
type GetEmployeeInput struct {
	ID string
}

// ListEmployeesInput は一覧取得時の入力です。
type ListEmployeesInput struct {
	CompanyID *string
	TeamID    *string
	Role      *Role
	IsActive  *bool
	PageSize  int
	PageToken string
}

// ListEmployeesResult は一覧取得結果を表します。
type ListEmployeesResult struct {
	Employees     []*Employee
	NextPageToken string
}

// GetEmployee は社員を取得します。
func (s *Service) GetEmployee(ctx context.Context, in GetEmployeeInput) (*Employee, error) {
	id, err := NormalizeID(in.ID)
	if err != nil {
		return nil, err
	}

	var result *Employee
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// ListEmployees は社員の一覧を取得します。
func (s *Service) ListEmployees(ctx context.Context, in ListEmployeesInput) (*ListEmployeesResult, error) {
	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	companyID, err := NormalizeReference(in.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("company_id: %w", err)
	}

	teamID, err := NormalizeReference(in.TeamID)
	if err != nil {
		return nil, fmt.Errorf("team_id: %w", err)
	}

	var rolePtr *Role
	if in.Role != nil {
		if !IsValidRole(*in.Role) {
			return nil, ErrInvalidRole
		}
		role := *in.Role
		rolePtr = &role
	}

	var (
		employees []*Employee
		nextToken string
	)

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		resultEmployees, token, err := s.repo.List(txCtx, ListEmployeesFilter{
			CompanyID: companyID,
			TeamID:    teamID,
			Role:      rolePtr,
			IsActive:  in.IsActive,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return err
		}
		employees = resultEmployees
		nextToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &ListEmployeesResult{Employees: employees, NextPageToken: nextToken}, nil
}

// UpdateEmployee は社員情報を更新します。
// 行をロックしたトランザクション内で認証基盤側を先に更新し、失敗した場合は行を変更しません。
func (s *Service) UpdateEmployee(ctx context.Context, in UpdateEmployeeInput) (*Employee, error) {
	id, err := NormalizeID(in.ID)
	if err != nil {
		return nil, err
	}

	var updated *Employee
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}

		identityUpdate, err := applyUpdate(existing, in)
		if err != nil {
			return err
		}

		if !identityUpdate.IsEmpty() {
			if _, err := s.directory.Update(txCtx, identityUpdate); err != nil {
				return fmt.Errorf("update identity %s: %w", existing.ID, err)
			}
		}

		existing.UpdatedAt = s.clock.Now()
		result, err := s.repo.Update(txCtx, existing)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// applyUpdate は入力を existing に反映し、認証基盤へ送る差分を返します。
func applyUpdate(existing *Employee, in UpdateEmployeeInput) (identity.UpdateInput, error) {
	identityUpdate := identity.UpdateInput{ID: existing.ID}

	if in.Email != nil {
		email, err := NormalizeEmail(*in.Email)
		if err != nil {
			return identityUpdate, err
		}
		if email != existing.Email {
			identityUpdate.Email = &email
			existing.Email = email
		}
	}

	if in.Name != nil {
		name, err := NormalizeName(*in.Name)
		if err != nil {
			return identityUpdate, err
		}
		if name != existing.Name {
			identityUpdate.Name = &name
			existing.Name = name
		}
	}

	if in.Role != nil {
		if !IsValidRole(*in.Role) {
			return identityUpdate, ErrInvalidRole
		}
		if *in.Role != existing.Role {
			role := string(*in.Role)
			identityUpdate.Role = &role
			existing.Role = *in.Role
		}
	}

	if in.Department != nil {
		existing.Department = NormalizeOptionalText(in.Department)
	}

	if in.Position != nil {
		existing.Position = NormalizeOptionalText(in.Position)
	}

	if in.TeamID != nil {
		teamID, err := NormalizeReference(in.TeamID)
		if err != nil {
			return identityUpdate, fmt.Errorf("team_id: %w", err)
		}
		existing.TeamID = teamID
	}

	if in.ReportingManagerID != nil {
		managerID, err := NormalizeReference(in.ReportingManagerID)
		if err != nil {
			return identityUpdate, fmt.Errorf("reporting_manager_id: %w", err)
		}
		existing.ReportingManagerID = managerID
	}

	if in.HireDate != nil {
		existing.HireDate = NormalizeDate(*in.HireDate)
	}

	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}

	return identityUpdate, nil
}

// DeleteEmployee は認証基盤のアカウントを削除した後、社員行を削除します。
// アカウント削除の失敗は記録のみ行い、行の削除は必ず試みます。
func (s *Service) DeleteEmployee(ctx context.Context, in DeleteEmployeeInput) (*Employee, error) {
	id, err := NormalizeID(in.ID)
	if err != nil {
		return nil, err
	}

	if err := s.directory.Delete(ctx, id); err != nil {
		entry := s.log.WithField("employee_id", id)
		if errors.Is(err, identity.ErrNotFound) {
			entry.Info("identity already absent, deleting directory row")
		} else {
			entry.WithError(err).Warn("identity delete failed, deleting directory row anyway")
		}
	}

	var deleted *Employee
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		result, err := s.repo.Delete(txCtx, id)
		if err != nil {
			return err
		}
		deleted = result
		return nil
	}); err != nil {
		return nil, err
	}

	return deleted, nil
}

func normalizePageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return defaultListPageSize, nil
	}
	if pageSize > maxListPageSize {
		return 0, ErrInvalidPageSize
	}
	return pageSize, nil
}

func parsePageToken(token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, ErrInvalidPageToken
	}

	return offset, nil
}
