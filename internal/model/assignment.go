package model

import "time"

// AssignmentType 是任职类型。acting（代理）不占用编制。
type AssignmentType string

const (
	AssignmentPermanent AssignmentType = "permanent"
	AssignmentTemporary AssignmentType = "temporary"
	AssignmentActing    AssignmentType = "acting"
)

// Valid 判断任职类型是否合法。
func (t AssignmentType) Valid() bool {
	switch t {
	case AssignmentPermanent, AssignmentTemporary, AssignmentActing:
		return true
	}
	return false
}

// AssignmentStatus 是任职记录的状态。
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentEnded     AssignmentStatus = "ended"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// PositionAssignment 对应于数据库中的 'position_assignments' 表。
// 记录只追加，唯一允许的修改是结束（设置 EndAt 与状态），从不删除。
type PositionAssignment struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID  string         `gorm:"type:varchar(64);not null;index:idx_assignments_position,priority:1;index:idx_assignments_user,priority:1" json:"companyId"`
	PositionID string         `gorm:"type:varchar(36);not null;index:idx_assignments_position,priority:2" json:"positionId"`
	UserID     string         `gorm:"type:varchar(64);not null;index:idx_assignments_user,priority:2" json:"userId"`
	Type       AssignmentType `gorm:"column:assignment_type;type:varchar(16);not null" json:"assignmentType"`
	StartAt    time.Time      `gorm:"not null" json:"startAt"`
	// EndAt 为 NULL 表示当前仍在任。
	EndAt      *time.Time       `json:"endAt"`
	Reason     string           `gorm:"type:text" json:"reason"`
	Status     AssignmentStatus `gorm:"type:varchar(16);not null;default:active" json:"status"`
	AssignedBy string           `gorm:"type:varchar(64)" json:"assignedBy"`
	ApprovedBy *string          `gorm:"type:varchar(64)" json:"approvedBy"`
	// PreviousAssignmentID 指向同一岗位上的前一条任职记录，形成历史链。
	PreviousAssignmentID *string   `gorm:"type:varchar(36)" json:"previousAssignmentId"`
	EndReason            string    `gorm:"type:text" json:"endReason,omitempty"`
	EndedBy              string    `gorm:"type:varchar(64)" json:"endedBy,omitempty"`
	Version              int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PositionAssignment) TableName() string {
	return "position_assignments"
}

// IsOpen 表示记录处于在任状态且没有结束时间，编制检查只统计这类记录。
func (a *PositionAssignment) IsOpen() bool {
	return a.Status == AssignmentActive && a.EndAt == nil
}

// Covers 判断该任职在时刻 t 是否有效。已取消的记录从未生效。
func (a *PositionAssignment) Covers(t time.Time) bool {
	if a.Status == AssignmentCancelled {
		return false
	}
	return WindowContains(a.StartAt, a.EndAt, t)
}
