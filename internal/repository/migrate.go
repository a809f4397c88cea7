package repository

import (
	"context"
	"org-authority-go/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 创建或更新全部表结构。
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&model.Department{},
		&model.Position{},
		&model.PositionAssignment{},
		&model.Delegation{},
		&model.OrgAuditLog{},
		&model.OccupantSwapRequest{},
	)
}
