package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
	"github.com/lk2023060901/brokerwatch/pkg/web"
	weberrors "github.com/lk2023060901/brokerwatch/pkg/web/errors"
)

// Check 依赖健康检查
type Check func(ctx context.Context) error

// HealthHandler 存活与依赖检查
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthHandler checks 为空时只表示进程存活
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// Register 注册 /healthz
func (h *HealthHandler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
}

// Healthz 所有依赖正常时返回 200，否则 503 并列出失败项
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, web.Response{
			Code:    weberrors.CodeUnavailable,
			Message: "unhealthy",
			Data:    gin.H{"status": "unhealthy", "failed": failed},
		})
		return
	}
	web.Success(c, gin.H{"status": "ok"})
}

// RegisterMetrics 挂载 Prometheus 指标
func RegisterMetrics(r gin.IRouter, prom *prometheus.Client) {
	r.GET(prom.Config().Path, gin.WrapH(prom.Handler()))
}
