package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateQuotationRequest struct {
	Note string `json:"note"`
}

type AddLineItemRequest struct {
	ProductDetailID string `json:"product_detail_id" binding:"required"`
	MonetaryUnit    string `json:"monetary_unit"` // Defaults to the catalog detail's unit
	QuantityType    string `json:"quantity_type"` // Defaults to the catalog detail's unit
}

type QuotationResponse struct {
	ID           string  `json:"id"`
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name,omitempty"`
	StaffID      *string `json:"staff_id,omitempty"`
	StaffName    string  `json:"staff_name,omitempty"`
	Status       string  `json:"status"`
	RoundCount   int     `json:"round_count"`
	Note         string  `json:"note,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type LineItemResponse struct {
	ID              string            `json:"id"`
	ProductDetailID string            `json:"product_detail_id"`
	ProductName     string            `json:"product_name,omitempty"`
	MonetaryUnit    string            `json:"monetary_unit"`
	QuantityType    string            `json:"quantity_type"`
	CurrentRevision *RevisionResponse `json:"current_revision,omitempty"`
}

type QuotationSnapshot struct {
	QuotationResponse
	LineItems []LineItemResponse `json:"line_items"`
	Rounds    []RoundResponse    `json:"rounds"`
}

type QuotationFilter struct {
	Status     string
	CustomerID string
	Page       int
	Limit      int
}

// --- Interface ---

type QuotationService interface {
	CreateQuotation(ctx context.Context, customerID string, req CreateQuotationRequest) (QuotationResponse, error)
	AddLineItem(ctx context.Context, quotationID, actorID string, req AddLineItemRequest) (LineItemResponse, error)
	RemoveLineItem(ctx context.Context, quotationID, lineItemID, actorID string) error
	Cancel(ctx context.Context, quotationID, requesterID string) (QuotationResponse, error)
	GetSnapshot(ctx context.Context, quotationID string) (QuotationSnapshot, error)
	ListRevisions(ctx context.Context, quotationID, lineItemID string) ([]RevisionResponse, error)
	ListQuotations(ctx context.Context, filter QuotationFilter) ([]QuotationResponse, int64, error)
}

type quotationService struct {
	quotationLocker
	lineItemRepo    repository.LineItemRepository
	negotiationRepo repository.NegotiationRepository
	productRepo     repository.ProductRepository
	userRepo        repository.UserRepository
	auditRepo       repository.AuditRepository
}

func NewQuotationService(
	quotationRepo repository.QuotationRepository,
	lineItemRepo repository.LineItemRepository,
	negotiationRepo repository.NegotiationRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) QuotationService {
	return &quotationService{
		quotationLocker: quotationLocker{txManager: txManager, quotationRepo: quotationRepo},
		lineItemRepo:    lineItemRepo,
		negotiationRepo: negotiationRepo,
		productRepo:     productRepo,
		userRepo:        userRepo,
		auditRepo:       auditRepo,
	}
}

// --- Implementation ---

func (s *quotationService) CreateQuotation(ctx context.Context, customerID string, req CreateQuotationRequest) (QuotationResponse, error) {
	uid, err := parseID("customer_id", customerID)
	if err != nil {
		return QuotationResponse{}, err
	}

	customer, err := s.userRepo.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return QuotationResponse{}, apperror.NotFound(apperror.CodeParticipantNotFound, "customer not found",
				"user_id", customerID)
		}
		return QuotationResponse{}, fmt.Errorf("failed to resolve customer: %w", err)
	}
	if customer.Role != model.RoleCustomer {
		return QuotationResponse{}, apperror.Conflict(apperror.CodeNotParticipant, "only customers may open quotations",
			"user_id", customerID, "role", customer.Role)
	}

	quotation := &model.Quotation{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Status:     model.QuotationStatusDraft,
		Note:       req.Note,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quotationRepo.Create(txCtx, quotation); err != nil {
			return fmt.Errorf("failed to create quotation: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{"note": req.Note})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &customer.ID,
			Action:   model.ActionCreateQuotation,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return QuotationResponse{}, err
	}

	quotation.Customer = customer
	return toQuotationResponse(quotation), nil
}

// AddLineItem binds a catalog product detail to the quotation. The line
// item's units default to the catalog detail's metadata and are fixed from
// then on.
func (s *quotationService) AddLineItem(ctx context.Context, quotationID, actorID string, req AddLineItemRequest) (LineItemResponse, error) {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return LineItemResponse{}, err
	}
	uid, err := parseID("actor_id", actorID)
	if err != nil {
		return LineItemResponse{}, err
	}
	detailID, err := parseID("product_detail_id", req.ProductDetailID)
	if err != nil {
		return LineItemResponse{}, err
	}
	if len(req.MonetaryUnit) > 256 || len(req.QuantityType) > 256 {
		return LineItemResponse{}, apperror.Validation(apperror.CodeInvalidProposal, "unit labels are limited to 256 characters",
			"quotation_id", quotationID)
	}

	var item *model.ProductDetailQuotation
	var detail *model.ProductDetail
	err = s.withQuotationLock(ctx, qid, func(txCtx context.Context, quotation *model.Quotation) error {
		if err := requireActive(quotation); err != nil {
			return err
		}
		if quotation.CustomerID != uid {
			return apperror.Conflict(apperror.CodeNotParticipant, "only the quotation's customer may edit line items",
				"quotation_id", quotationID, "user_id", actorID)
		}

		detail, err = s.productRepo.FindDetailByID(txCtx, detailID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(apperror.CodeProductDetailNotFound, "product detail not found",
					"product_detail_id", req.ProductDetailID)
			}
			return fmt.Errorf("failed to resolve product detail: %w", err)
		}

		if existing, err := s.lineItemRepo.FindByQuotationAndDetail(txCtx, quotation.ID, detail.ID); err == nil && existing != nil {
			return apperror.Conflict(apperror.CodeDuplicateLineItem, "product detail is already on this quotation",
				"quotation_id", quotationID, "product_detail_id", req.ProductDetailID,
				"line_item_id", existing.ID.String())
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check for duplicate line item: %w", err)
		}

		monetaryUnit := req.MonetaryUnit
		if monetaryUnit == "" {
			monetaryUnit = detail.MonetaryUnit
		}
		quantityType := req.QuantityType
		if quantityType == "" {
			quantityType = detail.QuantityType
		}

		item = &model.ProductDetailQuotation{
			ID:              uuid.New(),
			QuotationID:     quotation.ID,
			ProductDetailID: detail.ID,
			MonetaryUnit:    monetaryUnit,
			QuantityType:    quantityType,
			LatestVersion:   -1,
		}
		if err := s.lineItemRepo.Create(txCtx, item); err != nil {
			return fmt.Errorf("failed to create line item: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"product_detail_id": req.ProductDetailID,
			"monetary_unit":     monetaryUnit,
			"quantity_type":     quantityType,
		})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &uid,
			Action:   model.ActionAddLineItem,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return LineItemResponse{}, err
	}

	item.ProductDetail = detail
	return s.toLineItemResponse(ctx, *item), nil
}

// RemoveLineItem soft-deletes a line item and its revision history. A
// quotation that has already been submitted must keep at least one item.
func (s *quotationService) RemoveLineItem(ctx context.Context, quotationID, lineItemID, actorID string) error {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return err
	}
	itemID, err := parseID("line_item_id", lineItemID)
	if err != nil {
		return err
	}
	uid, err := parseID("actor_id", actorID)
	if err != nil {
		return err
	}

	return s.withQuotationLock(ctx, qid, func(txCtx context.Context, quotation *model.Quotation) error {
		if err := requireActive(quotation); err != nil {
			return err
		}
		if quotation.CustomerID != uid {
			return apperror.Conflict(apperror.CodeNotParticipant, "only the quotation's customer may edit line items",
				"quotation_id", quotationID, "user_id", actorID)
		}

		item, err := s.lineItemRepo.FindByID(txCtx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(apperror.CodeLineItemNotFound, "line item not found",
					"line_item_id", lineItemID)
			}
			return fmt.Errorf("failed to load line item: %w", err)
		}
		if item.QuotationID != quotation.ID {
			return apperror.NotFound(apperror.CodeLineItemNotFound, "line item does not belong to this quotation",
				"line_item_id", lineItemID, "quotation_id", quotationID)
		}

		if quotation.Status != model.QuotationStatusDraft {
			items, err := s.lineItemRepo.ListByQuotation(txCtx, quotation.ID)
			if err != nil {
				return fmt.Errorf("failed to list line items: %w", err)
			}
			if len(items) <= 1 {
				return apperror.Conflict(apperror.CodeQuotationEmpty, "a submitted quotation must keep at least one line item",
					"quotation_id", quotationID)
			}
		}

		if err := s.lineItemRepo.Remove(txCtx, item); err != nil {
			return fmt.Errorf("failed to remove line item: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"line_item_id":      lineItemID,
			"product_detail_id": item.ProductDetailID.String(),
		})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &uid,
			Action:   model.ActionRemoveLineItem,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
}

// Cancel archives the negotiation on the customer's request. A concurrently
// running proposal either wins the lock first (and the cancel lands after it)
// or loses and fails with the finalized-state error.
func (s *quotationService) Cancel(ctx context.Context, quotationID, requesterID string) (QuotationResponse, error) {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return QuotationResponse{}, err
	}
	uid, err := parseID("requester_id", requesterID)
	if err != nil {
		return QuotationResponse{}, err
	}

	var result *model.Quotation
	err = s.withQuotationLock(ctx, qid, func(txCtx context.Context, quotation *model.Quotation) error {
		if err := requireActive(quotation); err != nil {
			return err
		}
		if quotation.CustomerID != uid {
			return apperror.Conflict(apperror.CodeNotParticipant, "only the quotation's customer may cancel it",
				"quotation_id", quotationID, "user_id", requesterID)
		}

		// An open round dies with the quotation
		openRound, err := s.negotiationRepo.OpenRound(txCtx, quotation.ID)
		if err != nil {
			return fmt.Errorf("failed to load open round: %w", err)
		}
		if openRound != nil {
			now := time.Now()
			openRound.Outcome = model.RoundOutcomeRejected
			openRound.ClosedAt = &now
			if err := s.negotiationRepo.CloseRound(txCtx, openRound); err != nil {
				return fmt.Errorf("failed to close open round: %w", err)
			}
		}

		quotation.Status = model.QuotationStatusCancelled
		if err := s.quotationRepo.Update(txCtx, quotation); err != nil {
			return fmt.Errorf("failed to update quotation: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{"status": quotation.Status})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &uid,
			Action:   model.ActionCancelQuotation,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		result = quotation
		return nil
	})
	if err != nil {
		return QuotationResponse{}, err
	}

	return toQuotationResponse(result), nil
}

// GetSnapshot is the lock-free read path: current accepted state per line
// item plus the full round and message history.
func (s *quotationService) GetSnapshot(ctx context.Context, quotationID string) (QuotationSnapshot, error) {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return QuotationSnapshot{}, err
	}

	quotation, err := s.quotationRepo.FindByIDFull(ctx, qid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return QuotationSnapshot{}, apperror.NotFound(apperror.CodeQuotationNotFound, "quotation not found",
				"quotation_id", quotationID)
		}
		return QuotationSnapshot{}, fmt.Errorf("failed to load quotation: %w", err)
	}

	snapshot := QuotationSnapshot{
		QuotationResponse: toQuotationResponse(quotation),
		LineItems:         make([]LineItemResponse, 0, len(quotation.LineItems)),
		Rounds:            make([]RoundResponse, 0, len(quotation.Rounds)),
	}
	for _, item := range quotation.LineItems {
		snapshot.LineItems = append(snapshot.LineItems, s.toLineItemResponse(ctx, item))
	}
	for _, round := range quotation.Rounds {
		snapshot.Rounds = append(snapshot.Rounds, toRoundResponse(round))
	}

	return snapshot, nil
}

// ListRevisions returns a line item's full price history, oldest first.
func (s *quotationService) ListRevisions(ctx context.Context, quotationID, lineItemID string) ([]RevisionResponse, error) {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return nil, err
	}
	itemID, err := parseID("line_item_id", lineItemID)
	if err != nil {
		return nil, err
	}

	item, err := s.lineItemRepo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound(apperror.CodeLineItemNotFound, "line item not found",
				"line_item_id", lineItemID)
		}
		return nil, fmt.Errorf("failed to load line item: %w", err)
	}
	if item.QuotationID != qid {
		return nil, apperror.NotFound(apperror.CodeLineItemNotFound, "line item does not belong to this quotation",
			"line_item_id", lineItemID, "quotation_id", quotationID)
	}

	revisions, err := s.lineItemRepo.ListRevisions(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}

	res := make([]RevisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		res = append(res, toRevisionResponse(rev))
	}
	return res, nil
}

func (s *quotationService) ListQuotations(ctx context.Context, filter QuotationFilter) ([]QuotationResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	var customerID *uuid.UUID
	if filter.CustomerID != "" {
		uid, err := parseID("customer_id", filter.CustomerID)
		if err != nil {
			return nil, 0, err
		}
		customerID = &uid
	}

	quotations, total, err := s.quotationRepo.List(ctx, filter.Status, customerID, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quotations: %w", err)
	}

	res := make([]QuotationResponse, 0, len(quotations))
	for i := range quotations {
		res = append(res, toQuotationResponse(&quotations[i]))
	}
	return res, total, nil
}

// --- Helpers ---

func toQuotationResponse(q *model.Quotation) QuotationResponse {
	resp := QuotationResponse{
		ID:         q.ID.String(),
		CustomerID: q.CustomerID.String(),
		Status:     q.Status,
		RoundCount: q.RoundCount,
		Note:       q.Note,
		CreatedAt:  q.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  q.UpdatedAt.Format(time.RFC3339),
	}
	if q.Customer != nil {
		resp.CustomerName = q.Customer.Username
	}
	if q.StaffID != nil {
		id := q.StaffID.String()
		resp.StaffID = &id
	}
	if q.Staff != nil {
		resp.StaffName = q.Staff.Username
	}
	return resp
}

func (s *quotationService) toLineItemResponse(ctx context.Context, item model.ProductDetailQuotation) LineItemResponse {
	resp := LineItemResponse{
		ID:              item.ID.String(),
		ProductDetailID: item.ProductDetailID.String(),
		MonetaryUnit:    item.MonetaryUnit,
		QuantityType:    item.QuantityType,
	}
	if item.ProductDetail != nil && item.ProductDetail.Product != nil {
		resp.ProductName = item.ProductDetail.Product.ProductName
	}
	if rev, err := s.lineItemRepo.CurrentRevision(ctx, &item); err == nil && rev != nil {
		r := toRevisionResponse(*rev)
		resp.CurrentRevision = &r
	}
	return resp
}
