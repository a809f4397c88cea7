// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"org-authority-go/internal/model"

	"gorm.io/gorm"
)

// assignmentRepository 是 AssignmentRepository 接口的 GORM 实现。
type assignmentRepository struct {
	db *gorm.DB
}

// Create 在数据库中追加一条任职记录。
func (r *assignmentRepository) Create(ctx context.Context, a *model.PositionAssignment) error {
	return translateError(r.db.WithContext(ctx).Create(a).Error)
}

// FindByID 根据 ID 检索任职记录。
func (r *assignmentRepository) FindByID(ctx context.Context, companyID, id string) (*model.PositionAssignment, error) {
	var a model.PositionAssignment
	if err := findOne(r.db.WithContext(ctx), &a, "assignment", companyID, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.PositionAssignment, error) {
	var a model.PositionAssignment
	if err := findOne(forUpdate(r.db.WithContext(ctx)), &a, "assignment", companyID, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByPosition 返回岗位的完整任职历史，按开始时间升序。
func (r *assignmentRepository) FindByPosition(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error) {
	var records []model.PositionAssignment
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND position_id = ?", companyID, positionID).
		Order("start_at, id").
		Find(&records).Error
	return records, translateError(err)
}

// FindOpenByPosition 返回岗位上仍在任（status=active 且 end_at 为空）的记录。
func (r *assignmentRepository) FindOpenByPosition(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error) {
	var records []model.PositionAssignment
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND position_id = ? AND status = ? AND end_at IS NULL", companyID, positionID, model.AssignmentActive).
		Order("start_at, id").
		Find(&records).Error
	return records, translateError(err)
}

// FindByUser 返回用户在租户内的全部任职记录。
func (r *assignmentRepository) FindByUser(ctx context.Context, companyID, userID string) ([]model.PositionAssignment, error) {
	var records []model.PositionAssignment
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		Order("start_at, id").
		Find(&records).Error
	return records, translateError(err)
}

// Update 按版本号更新任职记录（仅用于结束任职）。
func (r *assignmentRepository) Update(ctx context.Context, a *model.PositionAssignment) error {
	return updateWithVersion(r.db.WithContext(ctx), "assignment", a, a.CompanyID, a.ID, &a.Version)
}
