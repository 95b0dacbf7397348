package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	pgdb "github.com/ogurasousui/codex-hr-provisioning/internal/platform/db/postgres"
)

const (
	employeeUniqueViolationCode     = "23505"
	employeeForeignKeyViolationCode = "23503"
	employeeCheckViolationCode      = "23514"
	invalidTextRepresentationCode   = "22P02"
)

const employeeColumns = `id, email, name, role, department, position, team_id, reporting_manager_id, company_id, hire_date, is_active, created_at, updated_at`

// EmployeeRepository は PostgreSQL を利用した社員ディレクトリの実装です。
type EmployeeRepository struct {
	pool pgdb.Queryer
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(pool pgdb.Queryer) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// Create は社員を新規作成します。ID は呼び出し側が認証基盤のアカウント ID を指定します。
func (r *EmployeeRepository) Create(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO employees (id, email, name, role, department, position, team_id, reporting_manager_id, company_id, hire_date, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING `+employeeColumns,
		e.ID,
		e.Email,
		e.Name,
		string(e.Role),
		e.Department,
		e.Position,
		e.TeamID,
		e.ReportingManagerID,
		e.CompanyID,
		dateOnly(e.HireDate),
		e.IsActive,
		e.CreatedAt,
		e.UpdatedAt,
	)

	created, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return created, nil
}

// Update は社員情報を更新します。
func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE employees
           SET email = $1,
               name = $2,
               role = $3,
               department = $4,
               position = $5,
               team_id = $6,
               reporting_manager_id = $7,
               hire_date = $8,
               is_active = $9,
               updated_at = $10
         WHERE id = $11
        RETURNING `+employeeColumns,
		e.Email,
		e.Name,
		string(e.Role),
		e.Department,
		e.Position,
		e.TeamID,
		e.ReportingManagerID,
		dateOnly(e.HireDate),
		e.IsActive,
		e.UpdatedAt,
		e.ID,
	)

	updated, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return updated, nil
}

// Delete は社員を削除し、削除した行を返します。
func (r *EmployeeRepository) Delete(ctx context.Context, id string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `DELETE FROM employees WHERE id = $1 RETURNING `+employeeColumns, id)

	deleted, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return deleted, nil
}

// FindByID は ID で社員を取得します。
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1 LIMIT 1`, id)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// FindByIDForUpdate は SELECT ... FOR UPDATE で行をロックして取得します。
// コンテキストに読み書きトランザクションが無い場合は ErrLockOutsideTransaction を返します。
func (r *EmployeeRepository) FindByIDForUpdate(ctx context.Context, id string) (*employee.Employee, error) {
	if !pgdb.InReadWriteTx(ctx) {
		return nil, pgdb.ErrLockOutsideTransaction
	}
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1 FOR UPDATE`, id)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// FindByEmail は lower(email) の一意インデックスを使ってメールアドレスで検索します。
func (r *EmployeeRepository) FindByEmail(ctx context.Context, email string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE lower(email) = lower($1) LIMIT 1`, email)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// List は社員の一覧を取得します。
func (r *EmployeeRepository) List(ctx context.Context, filter employee.ListEmployeesFilter) ([]*employee.Employee, string, error) {
	if filter.Limit <= 0 {
		return nil, "", employee.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", employee.ErrInvalidPageToken
	}

	limitWithBuffer := filter.Limit + 1

	args := make([]any, 0, 6)
	conditions := make([]string, 0, 4)

	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.CompanyID != nil {
		addCondition("company_id", *filter.CompanyID)
	}
	if filter.TeamID != nil {
		addCondition("team_id", *filter.TeamID)
	}
	if filter.Role != nil {
		addCondition("role", string(*filter.Role))
	}
	if filter.IsActive != nil {
		addCondition("is_active", *filter.IsActive)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limitPlaceholder := "$" + strconv.Itoa(len(args)+1)
	args = append(args, limitWithBuffer)
	offsetPlaceholder := "$" + strconv.Itoa(len(args)+1)
	args = append(args, filter.Offset)

	query := `
        SELECT ` + employeeColumns + `
          FROM employees` + whereClause + `
         ORDER BY created_at DESC, id DESC
         LIMIT ` + limitPlaceholder + `
        OFFSET ` + offsetPlaceholder + `
    `

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, "", translateEmployeePgError(err)
	}
	defer rows.Close()

	employees := make([]*employee.Employee, 0, filter.Limit)
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, "", translateEmployeePgError(err)
		}
		employees = append(employees, emp)
	}

	if err := rows.Err(); err != nil {
		return nil, "", translateEmployeePgError(err)
	}

	var nextToken string
	if len(employees) == limitWithBuffer {
		employees = employees[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}

	return employees, nextToken, nil
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var (
		id         string
		email      string
		name       string
		role       string
		department sql.NullString
		position   sql.NullString
		teamID     sql.NullString
		managerID  sql.NullString
		companyID  sql.NullString
		hireDate   time.Time
		isActive   bool
		createdAt  time.Time
		updatedAt  time.Time
	)

	if err := row.Scan(
		&id,
		&email,
		&name,
		&role,
		&department,
		&position,
		&teamID,
		&managerID,
		&companyID,
		&hireDate,
		&isActive,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}

	return &employee.Employee{
		ID:                 id,
		Email:              email,
		Name:               name,
		Role:               employee.Role(role),
		Department:         nullableString(department),
		Position:           nullableString(position),
		TeamID:             nullableString(teamID),
		ReportingManagerID: nullableString(managerID),
		CompanyID:          nullableString(companyID),
		HireDate:           dateOnly(hireDate),
		IsActive:           isActive,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

func translateEmployeePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return employee.ErrEmployeeNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case employeeUniqueViolationCode:
			if pgErr.ConstraintName == "employees_pkey" {
				return err
			}
			return employee.ErrEmailAlreadyExists
		case employeeForeignKeyViolationCode:
			switch pgErr.ConstraintName {
			case "employees_company_id_fkey":
				return employee.ErrCompanyNotFound
			case "employees_team_id_fkey":
				return employee.ErrTeamNotFound
			case "employees_reporting_manager_id_fkey":
				return employee.ErrManagerNotFound
			default:
				return err
			}
		case employeeCheckViolationCode:
			return employee.ErrInvalidRole
		case invalidTextRepresentationCode:
			// uuid 列に解釈できない値が渡された場合、該当する行は存在しない
			return employee.ErrEmployeeNotFound
		}
	}

	return err
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
