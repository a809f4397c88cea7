package handler

import (
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/service"
	"time"

	"github.com/gin-gonic/gin"
)

// AssignmentHandler 负责任职台账的 API 请求。
type AssignmentHandler struct {
	assignmentService service.AssignmentService
}

// NewAssignmentHandler 创建一个新的 AssignmentHandler 实例。
func NewAssignmentHandler(assignmentService service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: assignmentService}
}

// EndAssignmentRequest 定义了结束任职 API 的请求体结构。EndAt 为零值时取当前时间。
type EndAssignmentRequest struct {
	EndAt  time.Time `json:"endAt"`
	Reason string    `json:"reason"`
}

// Assign 处理任职请求。
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Assign", err)
		return
	}
	req.CompanyID = middleware.CompanyFrom(c)
	req.Actor = middleware.ActorFrom(c)
	a, err := h.assignmentService.Assign(c.Request.Context(), req)
	if err != nil {
		fail(c, "Assign", err)
		return
	}
	created(c, a)
}

// End 结束一条任职记录。
func (h *AssignmentHandler) End(c *gin.Context) {
	var req EndAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "EndAssignment", err)
		return
	}
	a, err := h.assignmentService.End(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), req.EndAt, req.Reason, middleware.ActorFrom(c))
	if err != nil {
		fail(c, "EndAssignment", err)
		return
	}
	ok(c, a)
}

// History 返回岗位的全部任职记录。
func (h *AssignmentHandler) History(c *gin.Context) {
	list, err := h.assignmentService.HistoryOf(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "AssignmentHistory", err)
		return
	}
	ok(c, list)
}

// Occupant 返回岗位在 asOf 时刻的主在岗记录，空缺时 data 为 null。
func (h *AssignmentHandler) Occupant(c *gin.Context) {
	asOf, err := queryTime(c, "asOf")
	if err != nil {
		badRequest(c, "Occupant", err)
		return
	}
	a, err := h.assignmentService.OccupantAt(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), asOf)
	if err != nil {
		fail(c, "Occupant", err)
		return
	}
	ok(c, a)
}

func (h *AssignmentHandler) Occupants(c *gin.Context) {
	asOf, err := queryTime(c, "asOf")
	if err != nil {
		badRequest(c, "Occupants", err)
		return
	}
	list, err := h.assignmentService.OccupantsAt(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), asOf)
	if err != nil {
		fail(c, "Occupants", err)
		return
	}
	ok(c, list)
}

// ForUser 返回用户在 asOf 时刻担任的岗位。
func (h *AssignmentHandler) ForUser(c *gin.Context) {
	asOf, err := queryTime(c, "asOf")
	if err != nil {
		badRequest(c, "AssignmentsForUser", err)
		return
	}
	list, err := h.assignmentService.AssignmentsForUser(c.Request.Context(), middleware.CompanyFrom(c), c.Param("userId"), asOf)
	if err != nil {
		fail(c, "AssignmentsForUser", err)
		return
	}
	ok(c, list)
}
