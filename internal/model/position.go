package model

import (
	"slices"
	"time"
)

// PositionScope 是岗位有权管辖的范围。
type PositionScope struct {
	Departments    []string `json:"departments,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	Processes      []string `json:"processes,omitempty"`
	EquipmentTypes []string `json:"equipmentTypes,omitempty"`
}

// ApprovalAuthority 描述岗位的审批能力。
type ApprovalAuthority struct {
	CanApproveTimeOff   bool     `json:"canApproveTimeOff"`
	CanApproveExpenses  bool     `json:"canApproveExpenses"`
	CanApprovePurchases bool     `json:"canApprovePurchases"`
	CanApproveOvertime  bool     `json:"canApproveOvertime"`
	CanApproveHiring    bool     `json:"canApproveHiring"`
	BudgetLimit         *float64 `json:"budgetLimit,omitempty"`
	CustomApprovalTypes []string `json:"customApprovalTypes,omitempty"`
}

// CanApprove 判断岗位是否具有某一类审批权限。
func (a ApprovalAuthority) CanApprove(approvalType string) bool {
	switch approvalType {
	case "time_off":
		return a.CanApproveTimeOff
	case "expenses":
		return a.CanApproveExpenses
	case "purchases":
		return a.CanApprovePurchases
	case "overtime":
		return a.CanApproveOvertime
	case "hiring":
		return a.CanApproveHiring
	}
	return slices.Contains(a.CustomApprovalTypes, approvalType)
}

// Position 对应于数据库中的 'positions' 表。
// 岗位通过 ReportsToPositionID 组成一片独立于部门层级的汇报森林。
type Position struct {
	ID           string `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID    string `gorm:"type:varchar(64);not null;uniqueIndex:uk_positions_company_code,priority:1" json:"companyId"`
	DepartmentID string `gorm:"type:varchar(36);not null;index" json:"departmentId"`
	Title        string `gorm:"type:varchar(100);not null" json:"title"`
	Code         string `gorm:"type:varchar(64);not null;uniqueIndex:uk_positions_company_code,priority:2" json:"code"`
	// Level 为 1 表示层级顶端。
	Level               int               `gorm:"not null;default:1" json:"level"`
	Scope               PositionScope     `gorm:"serializer:json;type:text" json:"scope"`
	Responsibilities    []string          `gorm:"serializer:json;type:text" json:"responsibilities"`
	Skills              []string          `gorm:"serializer:json;type:text" json:"skills"`
	Certifications      []string          `gorm:"serializer:json;type:text" json:"certifications"`
	ReportsToPositionID *string           `gorm:"type:varchar(36);index" json:"reportsToPositionId"`
	EmploymentType      string            `gorm:"type:varchar(32)" json:"employmentType"`
	// Headcount 是同时在岗的最大人数。
	Headcount         int               `gorm:"not null;default:1" json:"headcount"`
	ApprovalAuthority ApprovalAuthority `gorm:"serializer:json;type:text" json:"approvalAuthority"`
	Status            OrgStatus         `gorm:"type:varchar(16);not null;default:active" json:"status"`
	Version           int64             `gorm:"not null;default:1" json:"version"`
	CreatedBy         string            `gorm:"type:varchar(64)" json:"createdBy"`
	UpdatedBy         string            `gorm:"type:varchar(64)" json:"updatedBy"`
	CreatedAt         time.Time         `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime:false" json:"updatedAt"`
	ArchivedAt        *time.Time        `json:"archivedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Position) TableName() string {
	return "positions"
}

// PositionNode 是汇报树中的一个节点。
type PositionNode struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	Code                string          `json:"code"`
	DepartmentID        string          `json:"departmentId"`
	Level               int             `json:"level"`
	ReportsToPositionID *string         `json:"reportsToPositionId"`
	Status              OrgStatus       `json:"status"`
	Children            []*PositionNode `json:"children"`
}
