// Package repository 包含了所有与数据库交互的逻辑。
//
// Store 是目录存储的抽象：六类记录的仓储加上事务原语。每个查询都以租户
// companyID 为作用域，唯一的例外是 DelegationRepository.FindOverdue，它供
// 后台过期清理跨租户使用。
package repository

import (
	"context"
	"org-authority-go/internal/model"
	"time"
)

// Store 聚合了所有仓储。
type Store interface {
	Departments() DepartmentRepository
	Positions() PositionRepository
	Assignments() AssignmentRepository
	Delegations() DelegationRepository
	AuditLogs() AuditLogRepository
	SwapRequests() SwapRequestRepository

	// Transaction 在同一个事务内执行 fn，fn 返回错误时整体回滚。
	// 事务内的读取对并发事务是串行化的（行锁或全局锁），因此读后写的校验在提交前不会失效。
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// DepartmentRepository 定义了部门的数据操作方法。
type DepartmentRepository interface {
	Create(ctx context.Context, d *model.Department) error
	FindByID(ctx context.Context, companyID, id string) (*model.Department, error)
	FindAll(ctx context.Context, companyID string) ([]model.Department, error)
	// FindAllForUpdate 锁定租户的全部部门，用于需要整棵森林一致的结构变更。
	FindAllForUpdate(ctx context.Context, companyID string) ([]model.Department, error)
	// Update 按版本号更新，版本不匹配时返回 ErrConcurrentModification。
	Update(ctx context.Context, d *model.Department) error
}

// PositionRepository 定义了岗位的数据操作方法。
type PositionRepository interface {
	Create(ctx context.Context, p *model.Position) error
	FindByID(ctx context.Context, companyID, id string) (*model.Position, error)
	FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.Position, error)
	FindAll(ctx context.Context, companyID string) ([]model.Position, error)
	FindAllForUpdate(ctx context.Context, companyID string) ([]model.Position, error)
	FindByDepartment(ctx context.Context, companyID, departmentID string) ([]model.Position, error)
	Update(ctx context.Context, p *model.Position) error
}

// AssignmentRepository 定义了任职记录的数据操作方法。记录没有删除操作。
type AssignmentRepository interface {
	Create(ctx context.Context, a *model.PositionAssignment) error
	FindByID(ctx context.Context, companyID, id string) (*model.PositionAssignment, error)
	FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.PositionAssignment, error)
	// FindByPosition 按 startAt、id 升序返回岗位的全部历史。
	FindByPosition(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error)
	// FindOpenByPosition 返回 status=active 且 endAt 为空的记录。
	FindOpenByPosition(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error)
	FindByUser(ctx context.Context, companyID, userID string) ([]model.PositionAssignment, error)
	Update(ctx context.Context, a *model.PositionAssignment) error
}

// DelegationRepository 定义了授权的数据操作方法。
type DelegationRepository interface {
	Create(ctx context.Context, d *model.Delegation) error
	FindByID(ctx context.Context, companyID, id string) (*model.Delegation, error)
	FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.Delegation, error)
	FindByDelegatorPosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error)
	FindByDelegatePosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error)
	// FindByUser 返回该用户作为授权人或被授权人的全部授权。
	FindByUser(ctx context.Context, companyID, userID string) ([]model.Delegation, error)
	FindByStatus(ctx context.Context, companyID string, status model.DelegationStatus) ([]model.Delegation, error)
	// FindOverdue 跨租户返回持久化状态仍为 pending/active 但 endAt <= now 的授权。
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]model.Delegation, error)
	Update(ctx context.Context, d *model.Delegation) error
}

// AuditLogRepository 定义了审计日志的数据操作方法。只有追加和查询，没有更新与删除。
type AuditLogRepository interface {
	Create(ctx context.Context, l *model.OrgAuditLog) error
	// FindByEntity 按 timestamp、id 升序返回实体的全部日志。
	FindByEntity(ctx context.Context, companyID string, entityType model.EntityType, entityID string) ([]model.OrgAuditLog, error)
	// FindByTimeRange 返回 [from, to] 闭区间内的日志，按 timestamp、id 升序。
	FindByTimeRange(ctx context.Context, companyID string, from, to time.Time) ([]model.OrgAuditLog, error)
}

// SwapRequestRepository 定义了互换请求的数据操作方法。
type SwapRequestRepository interface {
	Create(ctx context.Context, s *model.OccupantSwapRequest) error
	FindByID(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error)
	FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error)
	// FindByCompany 返回租户的互换请求，status 为空时不过滤。
	FindByCompany(ctx context.Context, companyID string, status model.SwapStatus) ([]model.OccupantSwapRequest, error)
	Update(ctx context.Context, s *model.OccupantSwapRequest) error
}
