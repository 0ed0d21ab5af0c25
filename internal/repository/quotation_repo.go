package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrStaleQuotation is returned when a lock-token claim loses the race against
// a concurrent writer. Callers retry the whole transaction a bounded number of
// times before surfacing a conflict.
var ErrStaleQuotation = errors.New("quotation lock version is stale")

type QuotationRepository interface {
	Create(ctx context.Context, quotation *model.Quotation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	FindByIDFull(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	ClaimLock(ctx context.Context, quotation *model.Quotation) error
	Update(ctx context.Context, quotation *model.Quotation) error
	List(ctx context.Context, status string, customerID *uuid.UUID, page, limit int) ([]model.Quotation, int64, error)
}

type quotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) QuotationRepository {
	return &quotationRepository{db: db}
}

func (r *quotationRepository) Create(ctx context.Context, quotation *model.Quotation) error {
	return GetDB(ctx, r.db).Create(quotation).Error
}

func (r *quotationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var quotation model.Quotation
	if err := GetDB(ctx, r.db).First(&quotation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quotation, nil
}

// FindByIDFull loads the quotation with participants, live line items, and the
// full round history with ordered messages. Used by the snapshot read path.
func (r *quotationRepository) FindByIDFull(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var quotation model.Quotation
	if err := GetDB(ctx, r.db).
		Preload("Customer").
		Preload("Staff").
		Preload("LineItems").
		Preload("LineItems.ProductDetail").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Rounds.Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sent_at ASC, message_no ASC")
		}).
		Preload("Rounds.Messages.Sender").
		First(&quotation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quotation, nil
}

// ClaimLock compare-and-increments the quotation's optimistic token. At most
// one concurrent writer per quotation succeeds; losers get ErrStaleQuotation.
func (r *quotationRepository) ClaimLock(ctx context.Context, quotation *model.Quotation) error {
	res := GetDB(ctx, r.db).Model(&model.Quotation{}).
		Where("id = ? AND lock_version = ?", quotation.ID, quotation.LockVersion).
		Update("lock_version", quotation.LockVersion+1)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleQuotation
	}
	quotation.LockVersion++
	return nil
}

func (r *quotationRepository) Update(ctx context.Context, quotation *model.Quotation) error {
	return GetDB(ctx, r.db).Save(quotation).Error
}

func (r *quotationRepository) List(ctx context.Context, status string, customerID *uuid.UUID, page, limit int) ([]model.Quotation, int64, error) {
	var quotations []model.Quotation
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Quotation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Customer").
		Preload("Staff").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&quotations).Error; err != nil {
		return nil, 0, err
	}

	return quotations, total, nil
}
