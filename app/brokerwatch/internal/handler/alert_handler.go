package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dao"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/service"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/lk2023060901/brokerwatch/pkg/web"
	weberrors "github.com/lk2023060901/brokerwatch/pkg/web/errors"
	"github.com/lk2023060901/brokerwatch/pkg/web/middleware"
)

// TenantLookup 租户与集群查找
type TenantLookup interface {
	Lookup(tenantID, serverID string) (*tenant.Tenant, *tenant.Server, error)
}

// StatusReader 最近一次周期的状态
type StatusReader interface {
	Get(ctx context.Context, tenantID, serverID string) (*model.ServerStatus, error)
}

// AlertLister 打开的与最近解决的告警记录
type AlertLister interface {
	Open(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error)
	Resolved(ctx context.Context, tenantID, serverID string, limit uint64) ([]*model.AlertRecord, error)
}

// 已解决告警的分页条数
const (
	defaultResolvedLimit = 50
	maxResolvedLimit     = 500
)

// 告警列表的 state 查询参数
const (
	StateOpen     = "open"
	StateResolved = "resolved"
)

// PollTrigger 立即触发周期
type PollTrigger interface {
	Trigger(tenantID, serverID string) error
}

// AlertHandler 集群状态、告警列表与手动轮询
type AlertHandler struct {
	tenants TenantLookup
	status  StatusReader
	alerts  AlertLister
	poller  PollTrigger
	logger  logger.Logger
}

// NewAlertHandler 创建处理器
func NewAlertHandler(tenants TenantLookup, status StatusReader, alerts AlertLister, poller PollTrigger, l logger.Logger) *AlertHandler {
	return &AlertHandler{
		tenants: tenants,
		status:  status,
		alerts:  alerts,
		poller:  poller,
		logger:  l.Named("handler.alert"),
	}
}

// AlertList 告警列表响应
type AlertList struct {
	TenantID string               `json:"tenantId"`
	ServerID string               `json:"serverId"`
	State    string               `json:"state"`
	Alerts   []*model.AlertRecord `json:"alerts"`
}

// PollAccepted 手动轮询受理响应
type PollAccepted struct {
	TenantID string `json:"tenantId"`
	ServerID string `json:"serverId"`
}

// Register 注册路由，pollLimiter 为 nil 时不限流
func (h *AlertHandler) Register(r gin.IRouter, pollLimiter *middleware.RateLimiter) {
	api := r.Group("/api/v1/tenants/:tenant/servers/:server")
	{
		api.GET("/status", h.Status)
		api.GET("/alerts", h.Alerts)
		if pollLimiter != nil {
			api.POST("/poll", middleware.RateLimit(pollLimiter), h.Poll)
		} else {
			api.POST("/poll", h.Poll)
		}
	}
}

// PollKey 按 (tenant, server) 限流
func PollKey(c *gin.Context) string {
	return c.Param("tenant") + "/" + c.Param("server")
}

// lookup 校验路径参数，失败时已写入响应
func (h *AlertHandler) lookup(c *gin.Context) (tenantID, serverID string, ok bool) {
	tenantID, serverID = c.Param("tenant"), c.Param("server")
	if _, _, err := h.tenants.Lookup(tenantID, serverID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) || errors.Is(err, tenant.ErrServerNotFound) {
			web.Error(c, weberrors.CodeNotFound, err.Error())
			return "", "", false
		}
		web.Error(c, weberrors.CodeInternalError, "tenant lookup failed")
		return "", "", false
	}
	return tenantID, serverID, true
}

// Status 返回可用性、健康结论、打开的告警与每个 sink 最近一次投递
func (h *AlertHandler) Status(c *gin.Context) {
	tenantID, serverID, ok := h.lookup(c)
	if !ok {
		return
	}

	st, err := h.status.Get(c.Request.Context(), tenantID, serverID)
	if errors.Is(err, dao.ErrStatusNotFound) {
		web.Success(c, &model.ServerStatus{
			TenantID:     tenantID,
			ServerID:     serverID,
			Availability: model.Unavailable,
			Reason:       "awaiting first poll",
			Summary:      model.Summary{Health: model.HealthUnknown, Issues: []string{}},
			OpenAlerts:   []*model.AlertRecord{},
		})
		return
	}
	if err != nil {
		h.logger.Error("status read failed", "tenant", tenantID, "server", serverID, "error", err)
		web.Error(c, weberrors.CodeUnavailable, "status unavailable")
		return
	}
	web.Success(c, st)
}

// Alerts 列出存储中的告警，state=open（默认）或 state=resolved&limit=N
func (h *AlertHandler) Alerts(c *gin.Context) {
	tenantID, serverID, ok := h.lookup(c)
	if !ok {
		return
	}

	state := c.DefaultQuery("state", StateOpen)
	var (
		records []*model.AlertRecord
		err     error
	)
	switch state {
	case StateOpen:
		records, err = h.alerts.Open(c.Request.Context(), tenantID, serverID)
	case StateResolved:
		limit, perr := parseLimit(c.Query("limit"))
		if perr != nil {
			web.Error(c, weberrors.CodeInvalidParams, perr.Error())
			return
		}
		records, err = h.alerts.Resolved(c.Request.Context(), tenantID, serverID, limit)
	default:
		web.Error(c, weberrors.CodeInvalidParams, "state must be open or resolved")
		return
	}
	if err != nil {
		h.logger.Error("alert list failed", "tenant", tenantID, "server", serverID, "state", state, "error", err)
		web.Error(c, weberrors.CodeUnavailable, "alert store unavailable")
		return
	}
	if records == nil {
		records = []*model.AlertRecord{}
	}
	web.Success(c, AlertList{TenantID: tenantID, ServerID: serverID, State: state, Alerts: records})
}

func parseLimit(raw string) (uint64, error) {
	if raw == "" {
		return defaultResolvedLimit, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxResolvedLimit), nil
}

// Poll 立即触发一次周期，异步执行
func (h *AlertHandler) Poll(c *gin.Context) {
	tenantID, serverID, ok := h.lookup(c)
	if !ok {
		return
	}

	switch err := h.poller.Trigger(tenantID, serverID); {
	case err == nil:
		h.logger.Info("poll triggered", "tenant", tenantID, "server", serverID)
		web.Accepted(c, PollAccepted{TenantID: tenantID, ServerID: serverID})
	case errors.Is(err, service.ErrCycleRunning):
		web.Error(c, weberrors.CodeConflict, "a cycle is already running")
	case errors.Is(err, service.ErrPollerBusy), errors.Is(err, service.ErrPollerStopped):
		web.Error(c, weberrors.CodeUnavailable, err.Error())
	default:
		h.logger.Error("poll trigger failed", "tenant", tenantID, "server", serverID, "error", err)
		web.Error(c, weberrors.CodeInternalError, "poll trigger failed")
	}
}
