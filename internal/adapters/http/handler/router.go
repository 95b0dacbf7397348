package handler

import (
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/provisioning"
	"github.com/sirupsen/logrus"
)

// RouterOptions はルーター構築に必要な依存関係です。
type RouterOptions struct {
	Provisioner       provisioning.Provisioner
	Employees         employee.UseCase
	Environment       string
	Production        bool
	AllowedOrigins    []string
	BackendConfigured bool
	Logger            logrus.FieldLogger
}

var registerTagNameOnce sync.Once

// バリデーションエラーのフィールド名を JSON のキー名で報告させます。
func registerJSONTagNames() {
	registerTagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}

// NewRouter は社員 API のルーティングを構築します。
func NewRouter(opts RouterOptions) *gin.Engine {
	registerJSONTagNames()

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(CORS(opts.Production, opts.AllowedOrigins))
	r.Use(AccessLog(log))
	r.Use(gin.Recovery())

	employees := NewEmployeeHTTPHandler(opts.Provisioner, opts.Employees, opts.Production, log)
	health := NewHealthHandler(opts.BackendConfigured, opts.Environment)

	r.GET("/health", health.Check)
	r.POST("/create-employee", employees.CreateEmployee)
	r.GET("/employees", employees.ListEmployees)
	r.GET("/employees/:id", employees.GetEmployee)
	r.PUT("/employees/:id", employees.UpdateEmployee)
	r.DELETE("/employees/:id", employees.DeleteEmployee)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "route_not_found", Message: "route not found"})
	})

	return r
}
