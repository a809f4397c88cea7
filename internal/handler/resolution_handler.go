package handler

import (
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/model"
	"org-authority-go/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ResolutionHandler 回答"谁在某一时刻实际行使岗位的权限"。
type ResolutionHandler struct {
	resolutionService service.ResolutionService
}

// NewResolutionHandler 创建一个新的 ResolutionHandler 实例。
func NewResolutionHandler(resolutionService service.ResolutionService) *ResolutionHandler {
	return &ResolutionHandler{resolutionService: resolutionService}
}

// InvalidateRequest 定义了手动失效缓存 API 的请求体结构。
type InvalidateRequest struct {
	PositionIDs []string `json:"positionIds" binding:"required,min=1"`
}

// Resolve 解析岗位的实际行使人。
// 查询参数 asOf 指定时刻；department、location、process、approvalType、projectId、taskType、amount 组成业务上下文。
func (h *ResolutionHandler) Resolve(c *gin.Context) {
	asOf, err := queryTime(c, "asOf")
	if err != nil {
		badRequest(c, "Resolve", err)
		return
	}
	query, err := scopeQuery(c)
	if err != nil {
		badRequest(c, "Resolve", err)
		return
	}
	ea, err := h.resolutionService.Resolve(c.Request.Context(), service.ResolveRequest{
		CompanyID:  middleware.CompanyFrom(c),
		PositionID: c.Param("id"),
		AsOf:       asOf,
		Query:      query,
	})
	if err != nil {
		fail(c, "Resolve", err)
		return
	}
	ok(c, ea)
}

// Invalidate 删除岗位的缓存解析结果。
func (h *ResolutionHandler) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "InvalidateResolution", err)
		return
	}
	if err := h.resolutionService.Invalidate(c.Request.Context(), middleware.CompanyFrom(c), req.PositionIDs...); err != nil {
		fail(c, "InvalidateResolution", err)
		return
	}
	ok(c, gin.H{"invalidated": len(req.PositionIDs)})
}

func scopeQuery(c *gin.Context) (*model.ScopeQuery, error) {
	q := &model.ScopeQuery{
		Department:   c.Query("department"),
		Location:     c.Query("location"),
		Process:      c.Query("process"),
		ApprovalType: c.Query("approvalType"),
		ProjectID:    c.Query("projectId"),
		TaskType:     c.Query("taskType"),
	}
	if raw := c.Query("amount"); raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		q.Amount = &amount
	}
	if q.IsZero() {
		return nil, nil
	}
	return q, nil
}
