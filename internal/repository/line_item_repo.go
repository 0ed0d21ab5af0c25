package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineItemRepository persists quotation line items and their append-only
// revision store. AppendRevision assigns dense versions (0, 1, 2, ...) off the
// incrementally maintained LatestVersion index; it must run inside the owning
// quotation's lock scope so versions never gap or duplicate.
type LineItemRepository interface {
	Create(ctx context.Context, item *model.ProductDetailQuotation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ProductDetailQuotation, error)
	FindByQuotationAndDetail(ctx context.Context, quotationID, productDetailID uuid.UUID) (*model.ProductDetailQuotation, error)
	ListByQuotation(ctx context.Context, quotationID uuid.UUID) ([]model.ProductDetailQuotation, error)
	Remove(ctx context.Context, item *model.ProductDetailQuotation) error
	AppendRevision(ctx context.Context, item *model.ProductDetailQuotation, quantity int, price decimal.Decimal, proposedBy string, roundID uuid.UUID, at time.Time) (*model.ProductDetailQuotationRevision, error)
	CurrentRevision(ctx context.Context, item *model.ProductDetailQuotation) (*model.ProductDetailQuotationRevision, error)
	ListRevisions(ctx context.Context, lineItemID uuid.UUID) ([]model.ProductDetailQuotationRevision, error)
}

type lineItemRepository struct {
	db *gorm.DB
}

func NewLineItemRepository(db *gorm.DB) LineItemRepository {
	return &lineItemRepository{db: db}
}

func (r *lineItemRepository) Create(ctx context.Context, item *model.ProductDetailQuotation) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *lineItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProductDetailQuotation, error) {
	var item model.ProductDetailQuotation
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *lineItemRepository) FindByQuotationAndDetail(ctx context.Context, quotationID, productDetailID uuid.UUID) (*model.ProductDetailQuotation, error) {
	var item model.ProductDetailQuotation
	if err := GetDB(ctx, r.db).
		First(&item, "quotation_id = ? AND product_detail_id = ?", quotationID, productDetailID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *lineItemRepository) ListByQuotation(ctx context.Context, quotationID uuid.UUID) ([]model.ProductDetailQuotation, error) {
	var items []model.ProductDetailQuotation
	if err := GetDB(ctx, r.db).
		Preload("ProductDetail").
		Where("quotation_id = ?", quotationID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Remove soft-deletes the line item and cascades the soft delete to its
// revisions. Revision rows stay in the table for the audit trail.
func (r *lineItemRepository) Remove(ctx context.Context, item *model.ProductDetailQuotation) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("product_detail_quotation_id = ?", item.ID).
		Delete(&model.ProductDetailQuotationRevision{}).Error; err != nil {
		return err
	}
	return db.Delete(item).Error
}

func (r *lineItemRepository) AppendRevision(ctx context.Context, item *model.ProductDetailQuotation, quantity int, price decimal.Decimal, proposedBy string, roundID uuid.UUID, at time.Time) (*model.ProductDetailQuotationRevision, error) {
	db := GetDB(ctx, r.db)

	version := item.LatestVersion + 1
	rev := &model.ProductDetailQuotationRevision{
		ID:                       uuid.New(),
		ProductDetailQuotationID: item.ID,
		Version:                  version,
		Quantity:                 quantity,
		Price:                    price,
		ProposedBy:               proposedBy,
		RoundID:                  &roundID,
		CreatedAt:                at,
	}
	if err := db.Create(rev).Error; err != nil {
		return nil, err
	}

	// Keep the current-revision index in step with the append
	if err := db.Model(item).Update("latest_version", version).Error; err != nil {
		return nil, err
	}
	item.LatestVersion = version

	return rev, nil
}

// CurrentRevision resolves the highest-version revision through the
// LatestVersion index instead of scanning history. Returns (nil, nil) for a
// line item that is listed but not yet priced.
func (r *lineItemRepository) CurrentRevision(ctx context.Context, item *model.ProductDetailQuotation) (*model.ProductDetailQuotationRevision, error) {
	if item.LatestVersion < 0 {
		return nil, nil
	}
	var rev model.ProductDetailQuotationRevision
	err := GetDB(ctx, r.db).
		First(&rev, "product_detail_quotation_id = ? AND version = ?", item.ID, item.LatestVersion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rev, nil
}

func (r *lineItemRepository) ListRevisions(ctx context.Context, lineItemID uuid.UUID) ([]model.ProductDetailQuotationRevision, error) {
	var revs []model.ProductDetailQuotationRevision
	if err := GetDB(ctx, r.db).
		Where("product_detail_quotation_id = ?", lineItemID).
		Order("version ASC").
		Find(&revs).Error; err != nil {
		return nil, err
	}
	return revs, nil
}
