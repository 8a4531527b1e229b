package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
	"chat-insight/internal/service"
)

// UnifyHandler 身份归并的管理接口。预演随便跑；真正写库的 execute
// 是离线维护操作，不要和在线摄入同时进行。
type UnifyHandler struct {
	unifier *service.Unifier
	reports *service.ReportService
}

func NewUnifyHandler(unifier *service.Unifier, reports *service.ReportService) *UnifyHandler {
	return &UnifyHandler{unifier: unifier, reports: reports}
}

type unifyRequest struct {
	// 不传 mappings 时自动按归一昵称生成归并计划
	Mappings []model.UnifyMapping `json:"mappings"`
}

// Preview handles POST /api/unify/preview — 干跑，只出报告不写库
func (h *UnifyHandler) Preview(c *gin.Context) {
	h.run(c, false)
}

// Execute handles POST /api/unify/execute
func (h *UnifyHandler) Execute(c *gin.Context) {
	h.run(c, true)
}

func (h *UnifyHandler) run(c *gin.Context, execute bool) {
	var req unifyRequest
	c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	mappings := req.Mappings
	if len(mappings) == 0 {
		var err error
		mappings, err = h.unifier.BuildPlan(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := h.unifier.Run(ctx, mappings, execute)
	if err != nil {
		// 前置校验冲突也走这里：把冲突清单带给调用方
		logger.Warn("unify run rejected", "execute", execute, "err", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "report": report})
		return
	}

	if execute {
		if err := h.reports.RecomputeMemberStats(ctx); err != nil {
			logger.Error("stats recompute after unify failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, report)
}
