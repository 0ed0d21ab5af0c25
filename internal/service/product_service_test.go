package service

import (
	"context"
	"testing"

	"backend/pkg/apperror"
)

func TestCreateProductWithDetails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	product, err := fx.products.CreateProduct(ctx, fx.staff.ID.String(), CreateProductRequest{
		ProductName: "Walnut panel",
		Details: []CreateProductDetailRequest{
			{DisplayPrice: "120.00", MonetaryUnit: "USD", QuantityType: "m2"},
			{DisplayPrice: "15.00", MonetaryUnit: "USD", QuantityType: "unit"},
		},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if len(product.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(product.Details))
	}

	loaded, err := fx.products.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if loaded.ProductName != "Walnut panel" {
		t.Errorf("unexpected name %q", loaded.ProductName)
	}
}

func TestCreateProductRejectsBadPricing(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.products.CreateProduct(context.Background(), fx.staff.ID.String(), CreateProductRequest{
		ProductName: "Broken",
		Details:     []CreateProductDetailRequest{{DisplayPrice: "-3.00", MonetaryUnit: "USD", QuantityType: "unit"}},
	})
	if !apperror.IsCode(err, apperror.CodeInvalidProposal) {
		t.Fatalf("expected INVALID_PROPOSAL, got %v", err)
	}
}

func TestAddDetailToMissingProduct(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.products.AddDetail(context.Background(), "3e2a1d4c-0000-4000-8000-000000000000", fx.staff.ID.String(), CreateProductDetailRequest{
		DisplayPrice: "10.00", MonetaryUnit: "USD", QuantityType: "unit",
	})
	if !apperror.IsCode(err, apperror.CodeProductDetailNotFound) {
		t.Fatalf("expected PRODUCT_DETAIL_NOT_FOUND, got %v", err)
	}
}
