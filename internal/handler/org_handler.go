package handler

import (
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/service"

	"github.com/gin-gonic/gin"
)

// OrgHandler 负责部门与岗位结构的 API 请求。
type OrgHandler struct {
	orgService service.OrgService
}

// NewOrgHandler 创建一个新的 OrgHandler 实例。
func NewOrgHandler(orgService service.OrgService) *OrgHandler {
	return &OrgHandler{orgService: orgService}
}

// CreateDepartment 处理创建部门的请求。
func (h *OrgHandler) CreateDepartment(c *gin.Context) {
	var in service.DepartmentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "CreateDepartment", err)
		return
	}
	dept, err := h.orgService.CreateDepartment(c.Request.Context(), middleware.CompanyFrom(c), in, middleware.ActorFrom(c))
	if err != nil {
		fail(c, "CreateDepartment", err)
		return
	}
	created(c, dept)
}

// UpdateDepartment 处理更新部门的请求。
func (h *OrgHandler) UpdateDepartment(c *gin.Context) {
	var in service.DepartmentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "UpdateDepartment", err)
		return
	}
	dept, err := h.orgService.UpdateDepartment(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), in, middleware.ActorFrom(c))
	if err != nil {
		fail(c, "UpdateDepartment", err)
		return
	}
	ok(c, dept)
}

// ArchiveDepartment 归档部门。
func (h *OrgHandler) ArchiveDepartment(c *gin.Context) {
	dept, err := h.orgService.ArchiveDepartment(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		fail(c, "ArchiveDepartment", err)
		return
	}
	ok(c, dept)
}

func (h *OrgHandler) GetDepartment(c *gin.Context) {
	dept, err := h.orgService.GetDepartment(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "GetDepartment", err)
		return
	}
	ok(c, dept)
}

func (h *OrgHandler) ListDepartments(c *gin.Context) {
	list, err := h.orgService.ListDepartments(c.Request.Context(), middleware.CompanyFrom(c))
	if err != nil {
		fail(c, "ListDepartments", err)
		return
	}
	ok(c, list)
}

// DepartmentTree 返回部门树。
func (h *OrgHandler) DepartmentTree(c *gin.Context) {
	tree, err := h.orgService.DepartmentTree(c.Request.Context(), middleware.CompanyFrom(c))
	if err != nil {
		fail(c, "DepartmentTree", err)
		return
	}
	ok(c, tree)
}

// CreatePosition 处理创建岗位的请求。
func (h *OrgHandler) CreatePosition(c *gin.Context) {
	var in service.PositionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "CreatePosition", err)
		return
	}
	pos, err := h.orgService.CreatePosition(c.Request.Context(), middleware.CompanyFrom(c), in, middleware.ActorFrom(c))
	if err != nil {
		fail(c, "CreatePosition", err)
		return
	}
	created(c, pos)
}

// UpdatePosition 处理更新岗位的请求，调整汇报关系时会重新做环检测。
func (h *OrgHandler) UpdatePosition(c *gin.Context) {
	var in service.PositionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "UpdatePosition", err)
		return
	}
	pos, err := h.orgService.UpdatePosition(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), in, middleware.ActorFrom(c))
	if err != nil {
		fail(c, "UpdatePosition", err)
		return
	}
	ok(c, pos)
}

func (h *OrgHandler) ArchivePosition(c *gin.Context) {
	pos, err := h.orgService.ArchivePosition(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		fail(c, "ArchivePosition", err)
		return
	}
	ok(c, pos)
}

func (h *OrgHandler) GetPosition(c *gin.Context) {
	pos, err := h.orgService.GetPosition(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "GetPosition", err)
		return
	}
	ok(c, pos)
}

// ListPositions 列出岗位，可通过 departmentId 查询参数过滤。
func (h *OrgHandler) ListPositions(c *gin.Context) {
	list, err := h.orgService.ListPositions(c.Request.Context(), middleware.CompanyFrom(c), c.Query("departmentId"))
	if err != nil {
		fail(c, "ListPositions", err)
		return
	}
	ok(c, list)
}

func (h *OrgHandler) PositionTree(c *gin.Context) {
	tree, err := h.orgService.PositionTree(c.Request.Context(), middleware.CompanyFrom(c))
	if err != nil {
		fail(c, "PositionTree", err)
		return
	}
	ok(c, tree)
}

// Ancestors 返回岗位的汇报链，从顶端到直接上级。
func (h *OrgHandler) Ancestors(c *gin.Context) {
	list, err := h.orgService.AncestorsOf(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "Ancestors", err)
		return
	}
	ok(c, list)
}

// Descendants 返回岗位的全部下属岗位。
func (h *OrgHandler) Descendants(c *gin.Context) {
	list, err := h.orgService.DescendantsOf(c.Request.Context(), middleware.CompanyFrom(c), c.Param("id"))
	if err != nil {
		fail(c, "Descendants", err)
		return
	}
	ok(c, list)
}
