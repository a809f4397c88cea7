package repository

import (
	"context"
	"org-authority-go/internal/model"
	"time"

	"gorm.io/gorm"
)

type auditLogRepository struct {
	db *gorm.DB
}

// Create 追加一条审计日志。
func (r *auditLogRepository) Create(ctx context.Context, l *model.OrgAuditLog) error {
	return translateError(r.db.WithContext(ctx).Create(l).Error)
}

// FindByEntity 返回某个实体的全部审计日志。
func (r *auditLogRepository) FindByEntity(ctx context.Context, companyID string, entityType model.EntityType, entityID string) ([]model.OrgAuditLog, error) {
	var logs []model.OrgAuditLog
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ? AND entity_id = ?", companyID, entityType, entityID).
		Order("timestamp, id").
		Find(&logs).Error
	return logs, translateError(err)
}

// FindByTimeRange 返回时间范围（含两端）内的审计日志。
func (r *auditLogRepository) FindByTimeRange(ctx context.Context, companyID string, from, to time.Time) ([]model.OrgAuditLog, error) {
	var logs []model.OrgAuditLog
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND timestamp >= ? AND timestamp <= ?", companyID, from, to).
		Order("timestamp, id").
		Find(&logs).Error
	return logs, translateError(err)
}
