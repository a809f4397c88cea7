package repository

import (
	"context"
	"org-authority-go/internal/model"

	"gorm.io/gorm"
)

type departmentRepository struct {
	db *gorm.DB
}

// Create 在数据库中插入一个新的部门记录。
func (r *departmentRepository) Create(ctx context.Context, d *model.Department) error {
	return translateError(r.db.WithContext(ctx).Create(d).Error)
}

// FindByID 根据 ID 查找租户内的部门。
func (r *departmentRepository) FindByID(ctx context.Context, companyID, id string) (*model.Department, error) {
	var d model.Department
	if err := findOne(r.db.WithContext(ctx), &d, "department", companyID, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// FindAll 检索租户的所有部门。
func (r *departmentRepository) FindAll(ctx context.Context, companyID string) ([]model.Department, error) {
	return r.findAll(r.db.WithContext(ctx), companyID)
}

func (r *departmentRepository) FindAllForUpdate(ctx context.Context, companyID string) ([]model.Department, error) {
	return r.findAll(forUpdate(r.db.WithContext(ctx)), companyID)
}

func (r *departmentRepository) findAll(db *gorm.DB, companyID string) ([]model.Department, error) {
	var depts []model.Department
	err := db.Where("company_id = ?", companyID).Order("created_at, id").Find(&depts).Error
	return depts, translateError(err)
}

// Update 按版本号更新部门。
func (r *departmentRepository) Update(ctx context.Context, d *model.Department) error {
	return updateWithVersion(r.db.WithContext(ctx), "department", d, d.CompanyID, d.ID, &d.Version)
}
