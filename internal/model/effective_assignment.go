package model

import "time"

// EffectiveAssignment 是解析结果：在 AsOf 时刻实际行使岗位权限的人。
// 它只存在于解析缓存中，不是持久化的事实来源。
type EffectiveAssignment struct {
	CompanyID    string `json:"companyId"`
	PositionID   string `json:"positionId"`
	UserID       string `json:"userId,omitempty"`
	AssignmentID string `json:"assignmentId,omitempty"`
	// Vacant 为 true 时岗位在该时刻无人在岗，这是合法的解析结果而不是错误。
	Vacant         bool       `json:"vacant"`
	IsDelegated    bool       `json:"isDelegated"`
	DelegationID   string     `json:"delegationId,omitempty"`
	OriginalUserID string     `json:"originalUserId,omitempty"`
	AsOf           time.Time  `json:"asOf"`
	ValidFrom      time.Time  `json:"validFrom"`
	ValidUntil     *time.Time `json:"validUntil,omitempty"`
	ResolvedAt     time.Time  `json:"resolvedAt"`
	LatencyMs      int64      `json:"latencyMs"`
	UsedCache      bool       `json:"usedCache"`
}

// ValidAt 判断结果在时刻 t 是否仍然正确。
func (e *EffectiveAssignment) ValidAt(t time.Time) bool {
	return WindowContains(e.ValidFrom, e.ValidUntil, t)
}

// AuditDocument 是审计日志在 Elasticsearch 中的投影。
type AuditDocument struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	EntityType       string    `json:"entity_type"`
	EntityID         string    `json:"entity_id"`
	Action           string    `json:"action"`
	ActorUserID      string    `json:"actor_user_id"`
	ActorName        string    `json:"actor_name"`
	Reason           string    `json:"reason"`
	Notes            string    `json:"notes"`
	ChangedFields    []string  `json:"changed_fields"`
	ChangesText      string    `json:"changes_text"`
	RelatedEntityIDs []string  `json:"related_entity_ids"`
	Timestamp        time.Time `json:"timestamp"`
}

// AuditSearchHit 是审计检索返回给调用方的一条结果。
type AuditSearchHit struct {
	Document AuditDocument `json:"document"`
	Score    float64       `json:"score"`
}
