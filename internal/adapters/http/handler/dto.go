package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
)

const dateLayout = "2006-01-02"

type createEmployeeRequest struct {
	Name               string  `json:"name" binding:"required"`
	Email              string  `json:"email" binding:"required"`
	Password           string  `json:"password" binding:"required"`
	Role               *string `json:"role"`
	Department         *string `json:"department"`
	Position           *string `json:"position"`
	TeamID             *string `json:"team_id"`
	ReportingManagerID *string `json:"reporting_manager_id"`
	HireDate           *string `json:"hire_date"`
	IsActive           *bool   `json:"is_active"`
	CompanyID          *string `json:"company_id"`
}

type updateEmployeeRequest struct {
	Name               *string `json:"name"`
	Email              *string `json:"email"`
	Role               *string `json:"role"`
	Department         *string `json:"department"`
	Position           *string `json:"position"`
	TeamID             *string `json:"team_id"`
	ReportingManagerID *string `json:"reporting_manager_id"`
	HireDate           *string `json:"hire_date"`
	IsActive           *bool   `json:"is_active"`
}

type listEmployeesQuery struct {
	CompanyID *string `form:"company_id"`
	TeamID    *string `form:"team_id"`
	Role      *string `form:"role"`
	IsActive  *bool   `form:"is_active"`
	PageSize  int     `form:"page_size"`
	PageToken string  `form:"page_token"`
}

type employeeResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Role               string    `json:"role"`
	Department         *string   `json:"department"`
	Position           *string   `json:"position"`
	TeamID             *string   `json:"team_id"`
	ReportingManagerID *string   `json:"reporting_manager_id"`
	CompanyID          *string   `json:"company_id"`
	HireDate           string    `json:"hire_date"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type listEmployeesResponse struct {
	Employees     []employeeResponse `json:"employees"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type deletedEmployeeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toEmployeeResponse(e *employee.Employee) employeeResponse {
	return employeeResponse{
		ID:                 e.ID,
		Email:              e.Email,
		Name:               e.Name,
		Role:               string(e.Role),
		Department:         e.Department,
		Position:           e.Position,
		TeamID:             e.TeamID,
		ReportingManagerID: e.ReportingManagerID,
		CompanyID:          e.CompanyID,
		HireDate:           e.HireDate.Format(dateLayout),
		IsActive:           e.IsActive,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*value))
	if err != nil {
		return nil, fmt.Errorf("hire_date must be YYYY-MM-DD")
	}
	return &t, nil
}

func parseRole(value *string) *employee.Role {
	if value == nil {
		return nil
	}
	role := employee.Role(strings.ToLower(strings.TrimSpace(*value)))
	return &role
}
