package handler

import (
	"errors"
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/model"
	"org-authority-go/internal/service"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// AuditHandler 负责审计日志的查询、检索与导出。审计日志只能追加，没有修改与删除接口。
type AuditHandler struct {
	auditService service.AuditService
}

// NewAuditHandler 创建一个新的 AuditHandler 实例。
func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// ExportRequest 定义了审计导出 API 的请求体结构。
type ExportRequest struct {
	From time.Time `json:"from" binding:"required"`
	To   time.Time `json:"to" binding:"required"`
}

// ByEntity 返回某个实体的全部审计日志。
func (h *AuditHandler) ByEntity(c *gin.Context) {
	entityType := model.EntityType(c.Param("type"))
	if !entityType.Valid() {
		badRequest(c, "AuditByEntity", errors.New("unknown entity type "+strconv.Quote(string(entityType))))
		return
	}
	logs, err := h.auditService.QueryByEntity(c.Request.Context(), middleware.CompanyFrom(c), entityType, c.Param("id"))
	if err != nil {
		fail(c, "AuditByEntity", err)
		return
	}
	ok(c, logs)
}

// ByTimeRange 返回 [from, to] 区间内的审计日志，to 缺省为当前时刻。
func (h *AuditHandler) ByTimeRange(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		badRequest(c, "AuditByTimeRange", err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		badRequest(c, "AuditByTimeRange", err)
		return
	}
	logs, err := h.auditService.QueryByTimeRange(c.Request.Context(), middleware.CompanyFrom(c), from, to)
	if err != nil {
		fail(c, "AuditByTimeRange", err)
		return
	}
	ok(c, logs)
}

// Search 在审计检索投影上做全文检索。
func (h *AuditHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))
	hits, err := h.auditService.Search(c.Request.Context(), middleware.CompanyFrom(c), c.Query("q"), size)
	if err != nil {
		fail(c, "AuditSearch", err)
		return
	}
	ok(c, hits)
}

// Export 把时间区间内的审计日志导出到对象存储。
func (h *AuditHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AuditExport", err)
		return
	}
	export, err := h.auditService.Export(c.Request.Context(), middleware.CompanyFrom(c), req.From, req.To)
	if err != nil {
		fail(c, "AuditExport", err)
		return
	}
	ok(c, export)
}
