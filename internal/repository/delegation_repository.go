package repository

import (
	"context"
	"org-authority-go/internal/model"
	"time"

	"gorm.io/gorm"
)

type delegationRepository struct {
	db *gorm.DB
}

func (r *delegationRepository) Create(ctx context.Context, d *model.Delegation) error {
	return translateError(r.db.WithContext(ctx).Create(d).Error)
}

func (r *delegationRepository) FindByID(ctx context.Context, companyID, id string) (*model.Delegation, error) {
	var d model.Delegation
	if err := findOne(r.db.WithContext(ctx), &d, "delegation", companyID, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *delegationRepository) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.Delegation, error) {
	var d model.Delegation
	if err := findOne(forUpdate(r.db.WithContext(ctx)), &d, "delegation", companyID, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *delegationRepository) find(ctx context.Context, query string, args ...interface{}) ([]model.Delegation, error) {
	var records []model.Delegation
	err := r.db.WithContext(ctx).Where(query, args...).Order("start_at, id").Find(&records).Error
	return records, translateError(err)
}

// FindByDelegatorPosition 返回以该岗位为授权方的全部授权。
func (r *delegationRepository) FindByDelegatorPosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error) {
	return r.find(ctx, "company_id = ? AND delegator_position_id = ?", companyID, positionID)
}

// FindByDelegatePosition 返回以该岗位为被授权方的全部授权。
func (r *delegationRepository) FindByDelegatePosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error) {
	return r.find(ctx, "company_id = ? AND delegate_position_id = ?", companyID, positionID)
}

func (r *delegationRepository) FindByUser(ctx context.Context, companyID, userID string) ([]model.Delegation, error) {
	return r.find(ctx, "company_id = ? AND (delegator_user_id = ? OR delegate_user_id = ?)", companyID, userID, userID)
}

func (r *delegationRepository) FindByStatus(ctx context.Context, companyID string, status model.DelegationStatus) ([]model.Delegation, error) {
	return r.find(ctx, "company_id = ? AND status = ?", companyID, status)
}

// FindOverdue 供后台清理使用，跨租户查询已过期但状态尚未落库的授权。
func (r *delegationRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]model.Delegation, error) {
	var records []model.Delegation
	err := r.db.WithContext(ctx).
		Where("status IN ? AND end_at <= ?", []model.DelegationStatus{model.DelegationPending, model.DelegationActive}, now).
		Order("end_at, id").
		Limit(limit).
		Find(&records).Error
	return records, translateError(err)
}

func (r *delegationRepository) Update(ctx context.Context, d *model.Delegation) error {
	return updateWithVersion(r.db.WithContext(ctx), "delegation", d, d.CompanyID, d.ID, &d.Version)
}
