package model

import "time"

// SwapStatus 是互换请求的状态。
type SwapStatus string

const (
	SwapPending    SwapStatus = "pending"
	SwapApproved   SwapStatus = "approved"
	SwapInProgress SwapStatus = "in_progress"
	SwapCompleted  SwapStatus = "completed"
	SwapFailed     SwapStatus = "failed"
	SwapCancelled  SwapStatus = "cancelled"
)

// SwapSide 是互换的一侧：岗位以及请求时捕获的在岗人与任职记录。
type SwapSide struct {
	PositionID          string `gorm:"type:varchar(36);not null" json:"positionId"`
	CurrentUserID       string `gorm:"type:varchar(64);not null" json:"currentUserId"`
	CurrentAssignmentID string `gorm:"type:varchar(36);not null" json:"currentAssignmentId"`
	// NewAssignmentID 在执行成功后填写。
	NewAssignmentID string `gorm:"type:varchar(36)" json:"newAssignmentId,omitempty"`
}

// ReassignmentDetails 记录工作项改派的结果。
type ReassignmentDetails struct {
	TasksMoved     int      `json:"tasksMoved"`
	ProjectsMoved  int      `json:"projectsMoved"`
	ApprovalsMoved int      `json:"approvalsMoved"`
	TotalMoved     int      `json:"totalMoved"`
	Errors         []string `json:"errors"`
}

// OccupantSwapRequest 对应于数据库中的 'occupant_swap_requests' 表。
type OccupantSwapRequest struct {
	ID                  string              `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID           string              `gorm:"type:varchar(64);not null;index:idx_swaps_company_status,priority:1" json:"companyId"`
	SideA               SwapSide            `gorm:"embedded;embeddedPrefix:side_a_" json:"sideA"`
	SideB               SwapSide            `gorm:"embedded;embeddedPrefix:side_b_" json:"sideB"`
	Reason              string              `gorm:"type:text" json:"reason"`
	EffectiveDate       time.Time           `gorm:"not null" json:"effectiveDate"`
	AssignmentType      AssignmentType      `gorm:"type:varchar(16);not null" json:"assignmentType"`
	Status              SwapStatus          `gorm:"type:varchar(16);not null;index:idx_swaps_company_status,priority:2" json:"status"`
	RequiresApproval    bool                `gorm:"not null;default:false" json:"requiresApproval"`
	RequestedBy         string              `gorm:"type:varchar(64)" json:"requestedBy"`
	ApprovedBy          *string             `gorm:"type:varchar(64)" json:"approvedBy"`
	ApprovedAt          *time.Time          `json:"approvedAt"`
	CancelledBy         *string             `gorm:"type:varchar(64)" json:"cancelledBy,omitempty"`
	CancelledAt         *time.Time          `json:"cancelledAt,omitempty"`
	FailureReason       string              `gorm:"type:text" json:"failureReason,omitempty"`
	ReassignmentDetails ReassignmentDetails `gorm:"serializer:json;type:text" json:"reassignmentDetails"`
	StartedAt           *time.Time          `json:"startedAt,omitempty"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
	Version             int64               `gorm:"not null;default:1" json:"version"`
	CreatedAt           time.Time           `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (OccupantSwapRequest) TableName() string {
	return "occupant_swap_requests"
}

// Executable 判断请求当前是否可以执行。failed 可以重试，因为失败发生在任职变更提交之前。
func (s *OccupantSwapRequest) Executable() bool {
	switch s.Status {
	case SwapApproved, SwapFailed:
		return true
	case SwapPending:
		return !s.RequiresApproval
	}
	return false
}

// Cancellable 判断请求当前是否可以取消。执行中的请求不可取消。
func (s *OccupantSwapRequest) Cancellable() bool {
	return s.Status == SwapPending || s.Status == SwapApproved
}
