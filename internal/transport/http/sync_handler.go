package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"ordersync/backend/internal/middleware"
	"ordersync/backend/internal/service"
)

// SyncHandler 同步触发与状态查询处理器
type SyncHandler struct {
	syncs *service.SyncService
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(syncs *service.SyncService) *SyncHandler {
	return &SyncHandler{syncs: syncs}
}

type triggerSyncRequest struct {
	// Wait 为 true 时同步执行并返回完整结果，否则提交后台任务立即返回
	Wait bool `json:"wait"`
	// Force 为 true 时跳过最小间隔判断
	Force bool `json:"force"`
}

// triggerSync 触发一次邮箱同步
func (h *SyncHandler) triggerSync(c *gin.Context) {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		Unauthorized(c, "authentication required")
		return
	}

	var req triggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	if !req.Force {
		needs, err := h.syncs.NeedsSync(userID)
		if err != nil {
			InternalError(c, MsgSyncStatusFailed)
			return
		}
		if !needs {
			status, err := h.syncs.Status(userID)
			if err != nil {
				InternalError(c, MsgSyncStatusFailed)
				return
			}
			Success(c, status)
			return
		}
	}

	if req.Wait {
		summary, err := h.syncs.SyncNow(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, service.ErrSyncInProgress) {
				Conflict(c, MsgSyncInProgress)
				return
			}
			InternalError(c, MsgSyncFailed)
			return
		}
		Success(c, summary)
		return
	}

	if err := h.syncs.TriggerSync(c.Request.Context(), userID); err != nil {
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			Conflict(c, MsgSyncInProgress)
		case errors.Is(err, service.ErrSyncQueueFull):
			TooManyRequests(c, MsgSyncQueueFull)
		default:
			InternalError(c, MsgSyncFailed)
		}
		return
	}

	Accepted(c, gin.H{"userId": userID})
}

// syncStatus 查询当前用户的同步状态
func (h *SyncHandler) syncStatus(c *gin.Context) {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		Unauthorized(c, "authentication required")
		return
	}

	status, err := h.syncs.Status(userID)
	if err != nil {
		InternalError(c, MsgSyncStatusFailed)
		return
	}

	Success(c, status)
}
