package service

import (
	"context"
	"testing"

	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:svc_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fixture wires the full service stack against an in-memory database with one
// customer, one staff member, and a two-variant catalog product.
type fixture struct {
	db           *gorm.DB
	customer     *model.User
	staff        *model.User
	admin        *model.User
	detailA      *model.ProductDetail
	detailB      *model.ProductDetail
	users        UserService
	products     ProductService
	quotations   QuotationService
	negotiations NegotiationService
	audits       AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)

	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	quotationRepo := repository.NewQuotationRepository(db)
	lineItemRepo := repository.NewLineItemRepository(db)
	negotiationRepo := repository.NewNegotiationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	fx := &fixture{
		db:           db,
		users:        NewUserService(userRepo),
		products:     NewProductService(productRepo, auditRepo, txManager),
		quotations:   NewQuotationService(quotationRepo, lineItemRepo, negotiationRepo, productRepo, userRepo, auditRepo, txManager),
		negotiations: NewNegotiationService(quotationRepo, lineItemRepo, negotiationRepo, userRepo, auditRepo, txManager, nil),
		audits:       NewAuditService(auditRepo),
	}

	fx.customer = seedUser(t, db, "alice", "alice@example.com", model.RoleCustomer)
	fx.staff = seedUser(t, db, "bob", "bob@example.com", model.RoleStaff)
	fx.admin = seedUser(t, db, "root", "root@example.com", model.RoleAdmin)

	product := &model.Product{ID: uuid.New(), ProductName: "Oak flooring"}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	fx.detailA = seedDetail(t, db, product.ID, "24.00", "USD", "m2")
	fx.detailB = seedDetail(t, db, product.ID, "9.50", "USD", "unit")

	return fx
}

func seedUser(t *testing.T, db *gorm.DB, name, email, role string) *model.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	user := &model.User{
		ID:       uuid.New(),
		Username: name,
		Email:    email,
		Password: string(hash),
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user
}

func seedDetail(t *testing.T, db *gorm.DB, productID uuid.UUID, price, monetaryUnit, quantityType string) *model.ProductDetail {
	t.Helper()
	p, _ := decimal.NewFromString(price)
	detail := &model.ProductDetail{
		ID:           uuid.New(),
		ProductID:    productID,
		DisplayPrice: p,
		MonetaryUnit: monetaryUnit,
		QuantityType: quantityType,
	}
	if err := db.Create(detail).Error; err != nil {
		t.Fatalf("seed detail: %v", err)
	}
	return detail
}

// newQuotationWithItems creates a draft quotation for the fixture customer and
// adds one line item per product detail, returning the quotation id and the
// line item ids in order.
func (fx *fixture) newQuotationWithItems(t *testing.T, details ...*model.ProductDetail) (string, []string) {
	t.Helper()
	ctx := context.Background()

	quotation, err := fx.quotations.CreateQuotation(ctx, fx.customer.ID.String(), CreateQuotationRequest{Note: "bulk order"})
	if err != nil {
		t.Fatalf("create quotation: %v", err)
	}

	itemIDs := make([]string, 0, len(details))
	for _, d := range details {
		item, err := fx.quotations.AddLineItem(ctx, quotation.ID, fx.customer.ID.String(), AddLineItemRequest{
			ProductDetailID: d.ID.String(),
		})
		if err != nil {
			t.Fatalf("add line item: %v", err)
		}
		itemIDs = append(itemIDs, item.ID)
	}

	return quotation.ID, itemIDs
}

// proposeAll submits a proposal pricing every given line item at the same
// quantity and price.
func (fx *fixture) proposeAll(t *testing.T, quotationID, proposerID string, itemIDs []string, quantity int, price string) (RoundResponse, error) {
	t.Helper()
	items := make([]ProposalItemRequest, 0, len(itemIDs))
	for _, id := range itemIDs {
		items = append(items, ProposalItemRequest{LineItemID: id, Quantity: quantity, Price: price})
	}
	return fx.negotiations.Propose(context.Background(), quotationID, proposerID, ProposeRequest{Items: items})
}
