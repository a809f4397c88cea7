package handler

import (
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DelegationHandler 负责授权的 API 请求。
type DelegationHandler struct {
	delegationService service.DelegationService
}

// NewDelegationHandler 创建一个新的 DelegationHandler 实例。
func NewDelegationHandler(delegationService service.DelegationService) *DelegationHandler {
	return &DelegationHandler{delegationService: delegationService}
}

// DecisionRequest 是审批、驳回、撤销共用的请求体。
type DecisionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// Create 处理发起授权的请求。
func (h *DelegationHandler) Create(c *gin.Context) {
	var req service.CreateDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "CreateDelegation", err)
		return
	}
	req.CompanyID = middleware.CompanyFrom(c)
	req.Actor = middleware.ActorFrom(c)
	d, err := h.delegationService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, "CreateDelegation", err)
		return
	}
	created(c, d)
}

func (h *DelegationHandler) Approve(c *gin.Context) {
	var req DecisionRequest
	_ = c.ShouldBindJSON(&req)
	d, err := h.delegationService.Approve(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c), req.Comment)
	if err != nil {
		fail(c, "ApproveDelegation", err)
		return
	}
	ok(c, d)
}

func (h *DelegationHandler) Reject(c *gin.Context) {
	var req DecisionRequest
	_ = c.ShouldBindJSON(&req)
	d, err := h.delegationService.Reject(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c), req.Reason)
	if err != nil {
		fail(c, "RejectDelegation", err)
		return
	}
	ok(c, d)
}

// Revoke 提前终止一条生效中的授权。
func (h *DelegationHandler) Revoke(c *gin.Context) {
	var req DecisionRequest
	_ = c.ShouldBindJSON(&req)
	d, err := h.delegationService.Revoke(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c), req.Reason)
	if err != nil {
		fail(c, "RevokeDelegation", err)
		return
	}
	ok(c, d)
}

func (h *DelegationHandler) Get(c *gin.Context) {
	d, err := h.delegationService.Get(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "GetDelegation", err)
		return
	}
	ok(c, d)
}

func (h *DelegationHandler) Pending(c *gin.Context) {
	list, err := h.delegationService.PendingApprovals(c.Request.Context(), middleware.CompanyFrom(c))
	if err != nil {
		fail(c, "PendingDelegations", err)
		return
	}
	ok(c, list)
}

// ListByPosition 返回岗位作为授权方或被授权方的全部授权。
func (h *DelegationHandler) ListByPosition(c *gin.Context) {
	list, err := h.delegationService.ListByPosition(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "ListDelegations", err)
		return
	}
	ok(c, list)
}

// Active 返回 asOf 时刻生效的授权，userId 与 positionId 查询参数二选一。
func (h *DelegationHandler) Active(c *gin.Context) {
	asOf, err := queryTime(c, "asOf")
	if err != nil {
		badRequest(c, "ActiveDelegations", err)
		return
	}
	subject := service.DelegationSubject{UserID: c.Query("userId"), PositionID: c.Query("positionId")}
	list, err := h.delegationService.ActiveDelegationsFor(c.Request.Context(), middleware.CompanyFrom(c), subject, asOf)
	if err != nil {
		fail(c, "ActiveDelegations", err)
		return
	}
	ok(c, list)
}
