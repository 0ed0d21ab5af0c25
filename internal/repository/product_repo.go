package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository is the catalog lookup boundary consumed by the negotiation
// core when validating line items.
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	CreateDetail(ctx context.Context, detail *model.ProductDetail) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindDetailByID(ctx context.Context, id uuid.UUID) (*model.ProductDetail, error)
	List(ctx context.Context, page, limit int) ([]model.Product, int64, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Create(product).Error
}

func (r *productRepository) CreateDetail(ctx context.Context, detail *model.ProductDetail) error {
	return GetDB(ctx, r.db).Create(detail).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Preload("Details").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindDetailByID(ctx context.Context, id uuid.UUID) (*model.ProductDetail, error) {
	var detail model.ProductDetail
	if err := GetDB(ctx, r.db).Preload("Product").First(&detail, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &detail, nil
}

func (r *productRepository) List(ctx context.Context, page, limit int) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.
		Preload("Details").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}
