package model

import (
	"fmt"
	"strings"
	"time"
)

// EntityType 是审计日志记录的实体类型。
type EntityType string

const (
	EntityDepartment  EntityType = "department"
	EntityPosition    EntityType = "position"
	EntityAssignment  EntityType = "assignment"
	EntityDelegation  EntityType = "delegation"
	EntitySwapRequest EntityType = "swap_request"
)

// Valid 判断实体类型是否合法。
func (e EntityType) Valid() bool {
	switch e {
	case EntityDepartment, EntityPosition, EntityAssignment, EntityDelegation, EntitySwapRequest:
		return true
	}
	return false
}

// AuditAction 是审计日志记录的动作。
type AuditAction string

const (
	ActionCreate   AuditAction = "create"
	ActionUpdate   AuditAction = "update"
	ActionDelete   AuditAction = "delete"
	ActionAssign   AuditAction = "assign"
	ActionUnassign AuditAction = "unassign"
	ActionApprove  AuditAction = "approve"
	ActionReject   AuditAction = "reject"
	ActionRevoke   AuditAction = "revoke"
	ActionCancel   AuditAction = "cancel"
	ActionExpire   AuditAction = "expire"
)

// Valid 判断动作是否合法。
func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionAssign, ActionUnassign,
		ActionApprove, ActionReject, ActionRevoke, ActionCancel, ActionExpire:
		return true
	}
	return false
}

// RelationshipSwappedWith 标记一次岗位互换中相互引用的两条记录。
const RelationshipSwappedWith = "swapped_with"

// Actor 是执行变更的人。
type Actor struct {
	UserID string `gorm:"type:varchar(64);not null" json:"userId"`
	Name   string `gorm:"type:varchar(100)" json:"name"`
	Email  string `gorm:"type:varchar(255)" json:"email"`
}

// SystemActor 用于惰性过期、后台清理等没有真人参与的变更。
var SystemActor = Actor{UserID: "system", Name: "system"}

// FieldChange 是字段级别的变更。Type 为 added、modified 或 removed。
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"oldValue"`
	NewValue interface{} `json:"newValue"`
	Type     string      `json:"type"`
}

// RelatedEntity 用于复合操作（例如互换）中引用的其他实体。
type RelatedEntity struct {
	EntityType       EntityType `json:"entityType"`
	EntityID         string     `json:"entityId"`
	RelationshipType string     `json:"relationshipType"`
}

// ApprovalStep 是审批链中的一步。
type ApprovalStep struct {
	ApproverID string    `json:"approverId"`
	Decision   string    `json:"decision"`
	DecidedAt  time.Time `json:"decidedAt"`
	Comment    string    `json:"comment,omitempty"`
}

// OrgAuditLog 对应于数据库中的 'org_audit_logs' 表。写入后不可修改，也没有删除操作。
type OrgAuditLog struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID       string          `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:1;index:idx_audit_company_time,priority:1" json:"companyId"`
	EntityType      EntityType      `gorm:"type:varchar(32);not null;index:idx_audit_entity,priority:2" json:"entityType"`
	EntityID        string          `gorm:"type:varchar(36);not null;index:idx_audit_entity,priority:3" json:"entityId"`
	Action          AuditAction     `gorm:"type:varchar(16);not null" json:"action"`
	Actor           Actor           `gorm:"embedded;embeddedPrefix:actor_" json:"actor"`
	Changes         []FieldChange   `gorm:"serializer:json;type:text" json:"changes"`
	Reason          string          `gorm:"type:text" json:"reason"`
	Notes           string          `gorm:"type:text" json:"notes"`
	RelatedEntities []RelatedEntity `gorm:"serializer:json;type:text" json:"relatedEntities"`
	ApprovalChain   []ApprovalStep  `gorm:"serializer:json;type:text" json:"approvalChain,omitempty"`
	Timestamp       time.Time       `gorm:"not null;index:idx_audit_company_time,priority:2" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (OrgAuditLog) TableName() string {
	return "org_audit_logs"
}

// Validate 在写入前检查日志条目的完整性。
func (l *OrgAuditLog) Validate() error {
	var missing []string
	if strings.TrimSpace(l.CompanyID) == "" {
		missing = append(missing, "companyId")
	}
	if strings.TrimSpace(l.EntityID) == "" {
		missing = append(missing, "entityId")
	}
	if strings.TrimSpace(l.Actor.UserID) == "" {
		missing = append(missing, "actor.userId")
	}
	if l.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return fmt.Errorf("audit log missing %s", strings.Join(missing, ", "))
	}
	if !l.EntityType.Valid() {
		return fmt.Errorf("audit log has unknown entity type %q", l.EntityType)
	}
	if !l.Action.Valid() {
		return fmt.Errorf("audit log has unknown action %q", l.Action)
	}
	for i, c := range l.Changes {
		if c.Field == "" {
			return fmt.Errorf("audit log change #%d has no field", i)
		}
	}
	return nil
}

// Modified 构造一条字段修改记录。
func Modified(field string, oldValue, newValue interface{}) FieldChange {
	return FieldChange{Field: field, OldValue: oldValue, NewValue: newValue, Type: "modified"}
}

// Added 构造一条字段新增记录。
func Added(field string, value interface{}) FieldChange {
	return FieldChange{Field: field, NewValue: value, Type: "added"}
}
