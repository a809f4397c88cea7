// Package events defines the org change event exchanged over Kafka.
package events

import (
	"org-authority-go/internal/model"
	"slices"
	"time"
)

// OrgChangeEvent 是一条已提交审计日志的广播形式。
// 消费方据此维护审计检索投影，并失效本地的解析缓存。
type OrgChangeEvent struct {
	EventID    string            `json:"eventId"`
	CompanyID  string            `json:"companyId"`
	EntityType model.EntityType  `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Action     model.AuditAction `json:"action"`
	// PositionIDs 是解析结果可能受影响的岗位。
	PositionIDs []string          `json:"positionIds"`
	Log         model.OrgAuditLog `json:"log"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

// FromAuditLog 由审计日志构造事件，事件 ID 复用日志 ID 以便消费端去重。
func FromAuditLog(l *model.OrgAuditLog) OrgChangeEvent {
	return OrgChangeEvent{
		EventID:     l.ID,
		CompanyID:   l.CompanyID,
		EntityType:  l.EntityType,
		EntityID:    l.EntityID,
		Action:      l.Action,
		PositionIDs: PositionsOf(l),
		Log:         *l,
		OccurredAt:  l.Timestamp,
	}
}

// PositionsOf 返回日志直接或通过关联实体引用的岗位。
func PositionsOf(l *model.OrgAuditLog) []string {
	var ids []string
	if l.EntityType == model.EntityPosition {
		ids = append(ids, l.EntityID)
	}
	for _, r := range l.RelatedEntities {
		if r.EntityType == model.EntityPosition && !slices.Contains(ids, r.EntityID) {
			ids = append(ids, r.EntityID)
		}
	}
	return ids
}

// Key 是事件在 Kafka 中的分区键，同一租户的事件保持有序。
func (e OrgChangeEvent) Key() []byte {
	return []byte(e.CompanyID)
}
