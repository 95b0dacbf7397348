package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/provisioning"
	"github.com/sirupsen/logrus"
)

// EmployeeHTTPHandler は社員 API の HTTP 実装です。
type EmployeeHTTPHandler struct {
	provisioner provisioning.Provisioner
	svc         employee.UseCase
	production  bool
	log         logrus.FieldLogger
}

// NewEmployeeHTTPHandler は EmployeeHTTPHandler を生成します。
func NewEmployeeHTTPHandler(provisioner provisioning.Provisioner, svc employee.UseCase, production bool, log logrus.FieldLogger) *EmployeeHTTPHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EmployeeHTTPHandler{provisioner: provisioner, svc: svc, production: production, log: log}
}

// CreateEmployee は認証基盤のアカウントと社員行を作成します。
func (h *EmployeeHTTPHandler) CreateEmployee(c *gin.Context) {
	var req createEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, bindingError(err))
		return
	}

	hireDate, err := parseDate(req.HireDate)
	if err != nil {
		h.abort(c, newAPIError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	res := h.provisioner.Provision(c.Request.Context(), provisioning.Input{
		Name:               req.Name,
		Email:              req.Email,
		Password:           req.Password,
		Role:               req.Role,
		Department:         req.Department,
		Position:           req.Position,
		TeamID:             req.TeamID,
		ReportingManagerID: req.ReportingManagerID,
		HireDate:           hireDate,
		IsActive:           req.IsActive,
		CompanyID:          req.CompanyID,
	})
	if !res.Succeeded() {
		h.abort(c, provisioningError(res))
		return
	}

	c.JSON(http.StatusCreated, toEmployeeResponse(res.Employee))
}

// GetEmployee は社員を取得します。
func (h *EmployeeHTTPHandler) GetEmployee(c *gin.Context) {
	found, err := h.svc.GetEmployee(c.Request.Context(), employee.GetEmployeeInput{ID: c.Param("id")})
	if err != nil {
		h.abort(c, employeeError(err))
		return
	}
	c.JSON(http.StatusOK, toEmployeeResponse(found))
}

// ListEmployees は社員の一覧を取得します。
func (h *EmployeeHTTPHandler) ListEmployees(c *gin.Context) {
	var query listEmployeesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.abort(c, newAPIError(http.StatusBadRequest, "invalid_request", "query parameters are malformed", err))
		return
	}

	result, err := h.svc.ListEmployees(c.Request.Context(), employee.ListEmployeesInput{
		CompanyID: query.CompanyID,
		TeamID:    query.TeamID,
		Role:      parseRole(query.Role),
		IsActive:  query.IsActive,
		PageSize:  query.PageSize,
		PageToken: query.PageToken,
	})
	if err != nil {
		h.abort(c, employeeError(err))
		return
	}

	resp := listEmployeesResponse{Employees: make([]employeeResponse, 0, len(result.Employees)), NextPageToken: result.NextPageToken}
	for _, e := range result.Employees {
		resp.Employees = append(resp.Employees, toEmployeeResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateEmployee は社員情報を部分更新します。
func (h *EmployeeHTTPHandler) UpdateEmployee(c *gin.Context) {
	var req updateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, bindingError(err))
		return
	}

	hireDate, err := parseDate(req.HireDate)
	if err != nil {
		h.abort(c, newAPIError(http.StatusBadRequest, "invalid_request", err.Error(), err))
		return
	}

	updated, err := h.svc.UpdateEmployee(c.Request.Context(), employee.UpdateEmployeeInput{
		ID:                 c.Param("id"),
		Name:               req.Name,
		Email:              req.Email,
		Role:               parseRole(req.Role),
		Department:         req.Department,
		Position:           req.Position,
		TeamID:             req.TeamID,
		ReportingManagerID: req.ReportingManagerID,
		HireDate:           hireDate,
		IsActive:           req.IsActive,
	})
	if err != nil {
		h.abort(c, employeeError(err))
		return
	}
	c.JSON(http.StatusOK, toEmployeeResponse(updated))
}

// DeleteEmployee は認証基盤のアカウントと社員行を削除します。
func (h *EmployeeHTTPHandler) DeleteEmployee(c *gin.Context) {
	deleted, err := h.svc.DeleteEmployee(c.Request.Context(), employee.DeleteEmployeeInput{ID: c.Param("id")})
	if err != nil {
		h.abort(c, employeeError(err))
		return
	}
	c.JSON(http.StatusOK, deletedEmployeeResponse{ID: deleted.ID, Email: deleted.Email, Name: deleted.Name})
}
