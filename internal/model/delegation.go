package model

import (
	"slices"
	"time"
)

// DelegationScopeType 决定授权覆盖的范围。
type DelegationScopeType string

const (
	ScopeAll      DelegationScopeType = "all"
	ScopePartial  DelegationScopeType = "partial"
	ScopeSpecific DelegationScopeType = "specific"
)

// DelegationScope 描述授权的范围。除 all 外，各集合用于限制授权生效的场景。
type DelegationScope struct {
	Type          DelegationScopeType `json:"type"`
	Departments   []string            `json:"departments,omitempty"`
	Locations     []string            `json:"locations,omitempty"`
	Processes     []string            `json:"processes,omitempty"`
	ApprovalTypes []string            `json:"approvalTypes,omitempty"`
	ProjectIDs    []string            `json:"projectIds,omitempty"`
	TaskTypes     []string            `json:"taskTypes,omitempty"`
	BudgetLimit   *float64            `json:"budgetLimit,omitempty"`
	Description   string              `json:"description,omitempty"`
}

// ScopeQuery 是解析时的业务上下文，例如某个审批单所属的部门与金额。
type ScopeQuery struct {
	Department   string   `json:"department,omitempty"`
	Location     string   `json:"location,omitempty"`
	Process      string   `json:"process,omitempty"`
	ApprovalType string   `json:"approvalType,omitempty"`
	ProjectID    string   `json:"projectId,omitempty"`
	TaskType     string   `json:"taskType,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
}

// IsZero reports whether no dimension of the query is set.
func (q *ScopeQuery) IsZero() bool {
	return q == nil || (q.Department == "" && q.Location == "" && q.Process == "" &&
		q.ApprovalType == "" && q.ProjectID == "" && q.TaskType == "" && q.Amount == nil)
}

// Matches 判断授权范围是否覆盖查询上下文。
//
//   - 没有查询上下文时只有 all 范围的授权生效；
//   - 金额超过 BudgetLimit 的查询不匹配任何范围；
//   - partial：查询给出的维度若在授权中有限制集合，则必须落在集合内；
//   - specific：查询给出的每个维度都必须被授权显式列出。
func (s DelegationScope) Matches(q *ScopeQuery) bool {
	if q.IsZero() {
		return s.Type == ScopeAll
	}
	if s.BudgetLimit != nil && q.Amount != nil && *q.Amount > *s.BudgetLimit {
		return false
	}
	dims := []struct {
		allowed []string
		value   string
	}{
		{s.Departments, q.Department},
		{s.Locations, q.Location},
		{s.Processes, q.Process},
		{s.ApprovalTypes, q.ApprovalType},
		{s.ProjectIDs, q.ProjectID},
		{s.TaskTypes, q.TaskType},
	}
	switch s.Type {
	case ScopeAll:
		return true
	case ScopePartial:
		for _, d := range dims {
			if d.value != "" && len(d.allowed) > 0 && !slices.Contains(d.allowed, d.value) {
				return false
			}
		}
		return true
	case ScopeSpecific:
		for _, d := range dims {
			if d.value != "" && !slices.Contains(d.allowed, d.value) {
				return false
			}
		}
		return true
	}
	return false
}

// DelegationStatus 是授权的状态。revoked 与 rejected 是终态。
type DelegationStatus string

const (
	DelegationPending  DelegationStatus = "pending"
	DelegationActive   DelegationStatus = "active"
	DelegationExpired  DelegationStatus = "expired"
	DelegationRevoked  DelegationStatus = "revoked"
	DelegationRejected DelegationStatus = "rejected"
)

// Delegation 对应于数据库中的 'delegations' 表。
// 授权总有结束时间，生效区间为 [StartAt, EndAt)。
type Delegation struct {
	ID                  string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID           string           `gorm:"type:varchar(64);not null;index:idx_delegations_delegator,priority:1;index:idx_delegations_delegate,priority:1" json:"companyId"`
	DelegatorUserID     string           `gorm:"type:varchar(64);not null" json:"delegatorUserId"`
	DelegatorPositionID string           `gorm:"type:varchar(36);not null;index:idx_delegations_delegator,priority:2" json:"delegatorPositionId"`
	DelegateUserID      string           `gorm:"type:varchar(64);not null" json:"delegateUserId"`
	DelegatePositionID  string           `gorm:"type:varchar(36);not null;index:idx_delegations_delegate,priority:2" json:"delegatePositionId"`
	Scope               DelegationScope  `gorm:"serializer:json;type:text" json:"scope"`
	StartAt             time.Time        `gorm:"not null" json:"startAt"`
	EndAt               time.Time        `gorm:"not null;index" json:"endAt"`
	Status              DelegationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	RequiresApproval    bool             `gorm:"not null;default:false" json:"requiresApproval"`
	ApprovedBy          *string          `gorm:"type:varchar(64)" json:"approvedBy"`
	ApprovedAt          *time.Time       `json:"approvedAt"`
	RejectedBy          *string          `gorm:"type:varchar(64)" json:"rejectedBy,omitempty"`
	RejectedAt          *time.Time       `json:"rejectedAt,omitempty"`
	RejectionReason     string           `gorm:"type:text" json:"rejectionReason,omitempty"`
	RevokedBy           *string          `gorm:"type:varchar(64)" json:"revokedBy,omitempty"`
	RevokedAt           *time.Time       `json:"revokedAt,omitempty"`
	RevocationReason    string           `gorm:"type:text" json:"revocationReason,omitempty"`
	Reason              string           `gorm:"type:text" json:"reason"`
	Notes               string           `gorm:"type:text" json:"notes"`
	CreatedBy           string           `gorm:"type:varchar(64)" json:"createdBy"`
	Version             int64            `gorm:"not null;default:1" json:"version"`
	CreatedAt           time.Time        `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Delegation) TableName() string {
	return "delegations"
}

// IsTerminal reports whether no further transition is possible.
func (d *Delegation) IsTerminal() bool {
	return d.Status == DelegationRevoked || d.Status == DelegationRejected || d.Status == DelegationExpired
}

// StatusAt 根据时间戳推算授权在时刻 t 的状态，不依赖持久化状态是否已经更新。
// 已过 EndAt 的授权一律视为 expired，撤销与驳回按各自发生的时间生效。
func (d *Delegation) StatusAt(t time.Time) DelegationStatus {
	if d.Status == DelegationRejected {
		if d.RejectedAt != nil && t.Before(*d.RejectedAt) {
			return DelegationPending
		}
		return DelegationRejected
	}
	if d.RevokedAt != nil && !t.Before(*d.RevokedAt) {
		return DelegationRevoked
	}
	if !t.Before(d.EndAt) {
		return DelegationExpired
	}
	if d.RequiresApproval && (d.ApprovedAt == nil || t.Before(*d.ApprovedAt)) {
		return DelegationPending
	}
	if t.Before(d.StartAt) {
		return DelegationPending
	}
	return DelegationActive
}

// ActiveAt 判断授权在时刻 t 是否生效。
func (d *Delegation) ActiveAt(t time.Time) bool {
	return d.StatusAt(t) == DelegationActive
}

// Overlaps 判断授权窗口是否与 [start, end) 相交。
func (d *Delegation) Overlaps(start, end time.Time) bool {
	return WindowsOverlap(d.StartAt, &d.EndAt, start, &end)
}

// PrecedenceTime 是解析重叠授权时的排序依据：最近批准的优先，未经审批的按创建时间。
func (d *Delegation) PrecedenceTime() time.Time {
	if d.ApprovedAt != nil {
		return *d.ApprovedAt
	}
	return d.CreatedAt
}
