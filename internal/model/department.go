// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// OrgStatus 是部门与岗位共用的状态。archived 为终态，inactive 可以恢复为 active。
type OrgStatus string

const (
	StatusActive   OrgStatus = "active"
	StatusInactive OrgStatus = "inactive"
	StatusArchived OrgStatus = "archived"
)

// Valid 判断状态值是否合法。
func (s OrgStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// Department 对应于数据库中的 'departments' 表。
// 部门通过 ParentDepartmentID 组成一片森林，编码在租户内唯一。
type Department struct {
	// ID 是部门的唯一标识符（UUID），作为主键。
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`
	// CompanyID 是租户标识，所有查询都必须带上它。
	CompanyID string `gorm:"type:varchar(64);not null;uniqueIndex:uk_departments_company_code,priority:1" json:"companyId"`
	Name      string `gorm:"type:varchar(100);not null" json:"name"`
	// Code 是部门的短编码，在同一租户内唯一。
	Code string `gorm:"type:varchar(64);not null;uniqueIndex:uk_departments_company_code,priority:2" json:"code"`
	// ParentDepartmentID 指向上级部门，NULL 表示顶级部门。
	ParentDepartmentID *string    `gorm:"type:varchar(36);index" json:"parentDepartmentId"`
	Location           string     `gorm:"type:varchar(100)" json:"location"`
	CostCenter         string     `gorm:"type:varchar(64)" json:"costCenter"`
	Budget             *float64   `json:"budget"`
	Status             OrgStatus  `gorm:"type:varchar(16);not null;default:active" json:"status"`
	Version            int64      `gorm:"not null;default:1" json:"version"`
	CreatedBy          string     `gorm:"type:varchar(64)" json:"createdBy"`
	UpdatedBy          string     `gorm:"type:varchar(64)" json:"updatedBy"`
	CreatedAt          time.Time  `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime:false" json:"updatedAt"`
	ArchivedAt         *time.Time `json:"archivedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Department) TableName() string {
	return "departments"
}

// DepartmentNode 是部门树中的一个节点。
type DepartmentNode struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Code               string            `json:"code"`
	ParentDepartmentID *string           `json:"parentDepartmentId"`
	Status             OrgStatus         `json:"status"`
	Children           []*DepartmentNode `json:"children"`
}
