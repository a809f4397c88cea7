package repository

import (
	"context"
	"org-authority-go/internal/model"

	"gorm.io/gorm"
)

type positionRepository struct {
	db *gorm.DB
}

// Create 在数据库中插入一个新的岗位记录。
func (r *positionRepository) Create(ctx context.Context, p *model.Position) error {
	return translateError(r.db.WithContext(ctx).Create(p).Error)
}

// FindByID 根据 ID 查找租户内的岗位。
func (r *positionRepository) FindByID(ctx context.Context, companyID, id string) (*model.Position, error) {
	var p model.Position
	if err := findOne(r.db.WithContext(ctx), &p, "position", companyID, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByIDForUpdate 查找并锁定岗位行。任职与互换以岗位行作为编制检查的互斥点。
func (r *positionRepository) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.Position, error) {
	var p model.Position
	if err := findOne(forUpdate(r.db.WithContext(ctx)), &p, "position", companyID, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *positionRepository) FindAll(ctx context.Context, companyID string) ([]model.Position, error) {
	return r.findAll(r.db.WithContext(ctx), companyID)
}

func (r *positionRepository) FindAllForUpdate(ctx context.Context, companyID string) ([]model.Position, error) {
	return r.findAll(forUpdate(r.db.WithContext(ctx)), companyID)
}

func (r *positionRepository) findAll(db *gorm.DB, companyID string) ([]model.Position, error) {
	var positions []model.Position
	err := db.Where("company_id = ?", companyID).Order("created_at, id").Find(&positions).Error
	return positions, translateError(err)
}

// FindByDepartment 返回部门下的全部岗位。
func (r *positionRepository) FindByDepartment(ctx context.Context, companyID, departmentID string) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND department_id = ?", companyID, departmentID).
		Order("created_at, id").
		Find(&positions).Error
	return positions, translateError(err)
}

// Update 按版本号更新岗位。
func (r *positionRepository) Update(ctx context.Context, p *model.Position) error {
	return updateWithVersion(r.db.WithContext(ctx), "position", p, p.CompanyID, p.ID, &p.Version)
}
