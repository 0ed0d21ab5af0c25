package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateProductRequest struct {
	ProductName string                       `json:"product_name" binding:"required"`
	Description string                       `json:"description"`
	Details     []CreateProductDetailRequest `json:"details"`
}

type CreateProductDetailRequest struct {
	DisplayPrice string `json:"display_price" binding:"required"`
	MonetaryUnit string `json:"monetary_unit" binding:"required"`
	QuantityType string `json:"quantity_type" binding:"required"`
}

type ProductDetailResponse struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	DisplayPrice string `json:"display_price"`
	MonetaryUnit string `json:"monetary_unit"`
	QuantityType string `json:"quantity_type"`
}

type ProductResponse struct {
	ID          string                  `json:"id"`
	ProductName string                  `json:"product_name"`
	Description string                  `json:"description,omitempty"`
	Details     []ProductDetailResponse `json:"details,omitempty"`
}

// ProductService manages the catalog that quotations draw line items from
type ProductService interface {
	CreateProduct(ctx context.Context, actorID string, req CreateProductRequest) (*ProductResponse, error)
	AddDetail(ctx context.Context, productID, actorID string, req CreateProductDetailRequest) (*ProductDetailResponse, error)
	GetProduct(ctx context.Context, id string) (*ProductResponse, error)
	ListProducts(ctx context.Context, page, limit int) ([]ProductResponse, int64, error)
}

type productService struct {
	repo      repository.ProductRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewProductService(repo repository.ProductRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) ProductService {
	return &productService{repo: repo, auditRepo: auditRepo, txManager: txManager}
}

func parseDetailRequest(req CreateProductDetailRequest) (*model.ProductDetail, error) {
	price, err := decimal.NewFromString(req.DisplayPrice)
	if err != nil || price.IsNegative() {
		return nil, apperror.Validation(apperror.CodeInvalidProposal, "display price must be a non-negative decimal",
			"display_price", req.DisplayPrice)
	}
	if req.MonetaryUnit == "" || req.QuantityType == "" || len(req.MonetaryUnit) > 256 || len(req.QuantityType) > 256 {
		return nil, apperror.Validation(apperror.CodeInvalidProposal, "unit labels must be 1-256 characters",
			"monetary_unit", req.MonetaryUnit, "quantity_type", req.QuantityType)
	}
	return &model.ProductDetail{
		ID:           uuid.New(),
		DisplayPrice: price,
		MonetaryUnit: req.MonetaryUnit,
		QuantityType: req.QuantityType,
	}, nil
}

func (s *productService) CreateProduct(ctx context.Context, actorID string, req CreateProductRequest) (*ProductResponse, error) {
	uid, err := parseID("actor_id", actorID)
	if err != nil {
		return nil, err
	}

	product := &model.Product{
		ID:          uuid.New(),
		ProductName: req.ProductName,
		Description: req.Description,
	}
	for _, d := range req.Details {
		detail, err := parseDetailRequest(d)
		if err != nil {
			return nil, err
		}
		detail.ProductID = product.ID
		product.Details = append(product.Details, *detail)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{"detail_count": len(product.Details)})
		audit := &model.AuditLog{
			ID:         uuid.New(),
			UserID:     &uid,
			Action:     model.ActionCreateProduct,
			EntityID:   product.ID.String(),
			EntityName: product.ProductName,
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toProductResponse(product), nil
}

func (s *productService) AddDetail(ctx context.Context, productID, actorID string, req CreateProductDetailRequest) (*ProductDetailResponse, error) {
	pid, err := parseID("product_id", productID)
	if err != nil {
		return nil, err
	}
	uid, err := parseID("actor_id", actorID)
	if err != nil {
		return nil, err
	}

	detail, err := parseDetailRequest(req)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.repo.FindByID(txCtx, pid)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(apperror.CodeProductDetailNotFound, "product not found",
					"product_id", productID)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		detail.ProductID = product.ID
		if err := s.repo.CreateDetail(txCtx, detail); err != nil {
			return fmt.Errorf("failed to create product detail: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"monetary_unit": detail.MonetaryUnit,
			"quantity_type": detail.QuantityType,
		})
		audit := &model.AuditLog{
			ID:         uuid.New(),
			UserID:     &uid,
			Action:     model.ActionCreateProductDetail,
			EntityID:   detail.ID.String(),
			EntityName: product.ProductName,
			Details:    string(payload),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := toProductDetailResponse(*detail)
	return &resp, nil
}

func (s *productService) GetProduct(ctx context.Context, id string) (*ProductResponse, error) {
	pid, err := parseID("product_id", id)
	if err != nil {
		return nil, err
	}

	product, err := s.repo.FindByID(ctx, pid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound(apperror.CodeProductDetailNotFound, "product not found", "product_id", id)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	return toProductResponse(product), nil
}

func (s *productService) ListProducts(ctx context.Context, page, limit int) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	products, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	res := make([]ProductResponse, 0, len(products))
	for i := range products {
		res = append(res, *toProductResponse(&products[i]))
	}
	return res, total, nil
}

func toProductDetailResponse(d model.ProductDetail) ProductDetailResponse {
	return ProductDetailResponse{
		ID:           d.ID.String(),
		ProductID:    d.ProductID.String(),
		DisplayPrice: d.DisplayPrice.String(),
		MonetaryUnit: d.MonetaryUnit,
		QuantityType: d.QuantityType,
	}
}

func toProductResponse(p *model.Product) *ProductResponse {
	resp := &ProductResponse{
		ID:          p.ID.String(),
		ProductName: p.ProductName,
		Description: p.Description,
	}
	for _, d := range p.Details {
		resp.Details = append(resp.Details, toProductDetailResponse(d))
	}
	return resp
}
