package handler

import (
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/model"
	"org-authority-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SwapHandler 负责岗位在岗人互换的 API 请求。
type SwapHandler struct {
	swapService service.SwapService
}

// NewSwapHandler 创建一个新的 SwapHandler 实例。
func NewSwapHandler(swapService service.SwapService) *SwapHandler {
	return &SwapHandler{swapService: swapService}
}

// Request 发起互换请求，同时捕获两侧当前的在岗人。
func (h *SwapHandler) Request(c *gin.Context) {
	var in service.SwapRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "RequestSwap", err)
		return
	}
	in.CompanyID = middleware.CompanyFrom(c)
	in.Actor = middleware.ActorFrom(c)
	req, err := h.swapService.RequestSwap(c.Request.Context(), in)
	if err != nil {
		fail(c, "RequestSwap", err)
		return
	}
	created(c, req)
}

func (h *SwapHandler) Get(c *gin.Context) {
	req, err := h.swapService.Get(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "GetSwap", err)
		return
	}
	ok(c, req)
}

// List 列出互换请求，可通过 status 查询参数过滤。
func (h *SwapHandler) List(c *gin.Context) {
	list, err := h.swapService.List(c.Request.Context(), middleware.CompanyFrom(c), model.SwapStatus(c.Query("status")))
	if err != nil {
		fail(c, "ListSwaps", err)
		return
	}
	ok(c, list)
}

func (h *SwapHandler) Approve(c *gin.Context) {
	req, err := h.swapService.Approve(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		fail(c, "ApproveSwap", err)
		return
	}
	ok(c, req)
}

func (h *SwapHandler) Cancel(c *gin.Context) {
	var body DecisionRequest
	_ = c.ShouldBindJSON(&body)
	req, err := h.swapService.Cancel(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c), body.Reason)
	if err != nil {
		fail(c, "CancelSwap", err)
		return
	}
	ok(c, req)
}

// Execute 执行互换。失败的请求可以再次执行。
func (h *SwapHandler) Execute(c *gin.Context) {
	req, err := h.swapService.Execute(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		fail(c, "ExecuteSwap", err)
		return
	}
	ok(c, req)
}
