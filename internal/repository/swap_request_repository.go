package repository

import (
	"context"
	"org-authority-go/internal/model"

	"gorm.io/gorm"
)

type swapRequestRepository struct {
	db *gorm.DB
}

func (r *swapRequestRepository) Create(ctx context.Context, s *model.OccupantSwapRequest) error {
	return translateError(r.db.WithContext(ctx).Create(s).Error)
}

func (r *swapRequestRepository) FindByID(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error) {
	var s model.OccupantSwapRequest
	if err := findOne(r.db.WithContext(ctx), &s, "swap request", companyID, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *swapRequestRepository) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error) {
	var s model.OccupantSwapRequest
	if err := findOne(forUpdate(r.db.WithContext(ctx)), &s, "swap request", companyID, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *swapRequestRepository) FindByCompany(ctx context.Context, companyID string, status model.SwapStatus) ([]model.OccupantSwapRequest, error) {
	var records []model.OccupantSwapRequest
	db := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	err := db.Order("created_at, id").Find(&records).Error
	return records, translateError(err)
}

func (r *swapRequestRepository) Update(ctx context.Context, s *model.OccupantSwapRequest) error {
	return updateWithVersion(r.db.WithContext(ctx), "swap_request", s, s.CompanyID, s.ID, &s.Version)
}
