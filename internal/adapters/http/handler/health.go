package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler は稼働確認用のハンドラーです。
type HealthHandler struct {
	backendConfigured bool
	environment       string
}

// NewHealthHandler は HealthHandler を生成します。
func NewHealthHandler(backendConfigured bool, environment string) *HealthHandler {
	return &HealthHandler{backendConfigured: backendConfigured, environment: environment}
}

type healthResponse struct {
	Status            string `json:"status"`
	BackendConfigured bool   `json:"backend_configured"`
	Environment       string `json:"environment"`
}

// Check は認証基盤の接続情報が設定済みかどうかを返します。
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:            "ok",
		BackendConfigured: h.backendConfigured,
		Environment:       h.environment,
	})
}
