package handler

import (
	"org-authority-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Services 汇总注册路由所需的业务服务。
type Services struct {
	Org         service.OrgService
	Assignments service.AssignmentService
	Delegations service.DelegationService
	Resolution  service.ResolutionService
	Swaps       service.SwapService
	Audit       service.AuditService
}

// RegisterRoutes 在已完成认证的路由组上注册全部组织权限接口。
func RegisterRoutes(api *gin.RouterGroup, svc Services) {
	org := NewOrgHandler(svc.Org)
	assignments := NewAssignmentHandler(svc.Assignments)
	delegations := NewDelegationHandler(svc.Delegations)
	resolution := NewResolutionHandler(svc.Resolution)
	swaps := NewSwapHandler(svc.Swaps)
	audit := NewAuditHandler(svc.Audit)

	departments := api.Group("/departments")
	{
		departments.POST("", org.CreateDepartment)
		departments.GET("", org.ListDepartments)
		departments.GET("/tree", org.DepartmentTree)
		departments.GET("/:id", org.GetDepartment)
		departments.PUT("/:id", org.UpdateDepartment)
		departments.DELETE("/:id", org.ArchiveDepartment)
	}

	positions := api.Group("/positions")
	{
		positions.POST("", org.CreatePosition)
		positions.GET("", org.ListPositions)
		positions.GET("/tree", org.PositionTree)
		positions.GET("/:id", org.GetPosition)
		positions.PUT("/:id", org.UpdatePosition)
		positions.DELETE("/:id", org.ArchivePosition)
		positions.GET("/:id/ancestors", org.Ancestors)
		positions.GET("/:id/descendants", org.Descendants)
		positions.GET("/:id/assignments", assignments.History)
		positions.GET("/:id/occupant", assignments.Occupant)
		positions.GET("/:id/occupants", assignments.Occupants)
		positions.GET("/:id/delegations", delegations.ListByPosition)
		positions.GET("/:id/effective", resolution.Resolve)
	}

	api.POST("/assignments", assignments.Assign)
	api.POST("/assignments/:id/end", assignments.End)
	api.GET("/users/:userId/assignments", assignments.ForUser)

	dg := api.Group("/delegations")
	{
		dg.POST("", delegations.Create)
		dg.GET("/pending", delegations.Pending)
		dg.GET("/active", delegations.Active)
		dg.GET("/:id", delegations.Get)
		dg.POST("/:id/approve", delegations.Approve)
		dg.POST("/:id/reject", delegations.Reject)
		dg.POST("/:id/revoke", delegations.Revoke)
	}

	api.POST("/resolution/invalidate", resolution.Invalidate)

	sw := api.Group("/swaps")
	{
		sw.POST("", swaps.Request)
		sw.GET("", swaps.List)
		sw.GET("/:id", swaps.Get)
		sw.POST("/:id/approve", swaps.Approve)
		sw.POST("/:id/cancel", swaps.Cancel)
		sw.POST("/:id/execute", swaps.Execute)
	}

	au := api.Group("/audit")
	{
		au.GET("", audit.ByTimeRange)
		au.GET("/search", audit.Search)
		au.GET("/:type/:id", audit.ByEntity)
		au.POST("/export", audit.Export)
	}
}
