package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type ProposalItemRequest struct {
	LineItemID   string `json:"line_item_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required"`
	Price        string `json:"price" binding:"required"` // Decimal string, e.g. "6.00"
	MonetaryUnit string `json:"monetary_unit"`            // Optional; must match the line item's fixed unit
	QuantityType string `json:"quantity_type"`            // Optional; must match the line item's fixed unit
}

type ProposeRequest struct {
	Items   []ProposalItemRequest `json:"items" binding:"required,min=1,dive"`
	Message string                `json:"message"` // Optional note attached to the new round
}

type RevisionResponse struct {
	ID         string `json:"id"`
	Version    int    `json:"version"`
	Quantity   int    `json:"quantity"`
	Price      string `json:"price"`
	ProposedBy string `json:"proposed_by"`
	RoundID    string `json:"round_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type MessageResponse struct {
	ID         string `json:"id"`
	RoundID    string `json:"round_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Body       string `json:"body"`
	SentAt     string `json:"sent_at"`
}

type RoundResponse struct {
	ID        string            `json:"id"`
	Sequence  int               `json:"sequence"`
	Initiator string            `json:"initiator"`
	Outcome   string            `json:"outcome"`
	OpenedAt  string            `json:"opened_at"`
	ClosedAt  *string           `json:"closed_at,omitempty"`
	Messages  []MessageResponse `json:"messages,omitempty"`
}

// NegotiationEvent is the websocket payload broadcast on round/message changes
type NegotiationEvent struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// --- Interface ---

type NegotiationService interface {
	Propose(ctx context.Context, quotationID, proposerID string, req ProposeRequest) (RoundResponse, error)
	RespondAccept(ctx context.Context, quotationID, roundID, responderID string) (RoundResponse, error)
	RespondReject(ctx context.Context, quotationID, roundID, responderID string) (RoundResponse, error)
	AddMessage(ctx context.Context, roundID, senderID, body string) (MessageResponse, error)
	ListMessages(ctx context.Context, roundID string, page, limit int) ([]MessageResponse, int64, error)
}

type negotiationService struct {
	quotationLocker
	lineItemRepo    repository.LineItemRepository
	negotiationRepo repository.NegotiationRepository
	userRepo        repository.UserRepository
	auditRepo       repository.AuditRepository
	hub             *ws.Hub
}

func NewNegotiationService(
	quotationRepo repository.QuotationRepository,
	lineItemRepo repository.LineItemRepository,
	negotiationRepo repository.NegotiationRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) NegotiationService {
	return &negotiationService{
		quotationLocker: quotationLocker{txManager: txManager, quotationRepo: quotationRepo},
		lineItemRepo:    lineItemRepo,
		negotiationRepo: negotiationRepo,
		userRepo:        userRepo,
		auditRepo:       auditRepo,
		hub:             hub,
	}
}

// --- Implementation ---

// Propose submits a full proposal on behalf of one party. On a draft
// quotation the customer's first proposal prices every line item and opens
// round 1. When the counterparty has a round awaiting response, the proposal
// closes that round as COUNTERED and opens the next one in the same
// transaction. Proposing again while your own round is still open fails.
func (s *negotiationService) Propose(ctx context.Context, quotationID, proposerID string, req ProposeRequest) (RoundResponse, error) {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return RoundResponse{}, err
	}
	pid, err := parseID("proposer_id", proposerID)
	if err != nil {
		return RoundResponse{}, err
	}
	if len(req.Items) == 0 {
		return RoundResponse{}, apperror.Validation(apperror.CodeInvalidProposal, "a proposal must contain at least one line item",
			"quotation_id", quotationID)
	}

	var round *model.QuotationNegotiationLog
	err = s.withQuotationLock(ctx, qid, func(txCtx context.Context, quotation *model.Quotation) error {
		if err := requireActive(quotation); err != nil {
			return err
		}

		proposer, err := s.resolveParticipant(txCtx, pid)
		if err != nil {
			return err
		}
		party, err := partyOf(proposer)
		if err != nil {
			return err
		}
		if err := requireParticipant(quotation, proposer, party, true); err != nil {
			return err
		}

		openRound, err := s.negotiationRepo.OpenRound(txCtx, quotation.ID)
		if err != nil {
			return fmt.Errorf("failed to load open round: %w", err)
		}

		action := model.ActionPropose
		now := time.Now()

		switch {
		case openRound == nil:
			// Opening move. Round 1 always belongs to the customer; later
			// rounds must alternate with the previous initiator.
			if quotation.RoundCount == 0 {
				if party != model.PartyCustomer {
					return apperror.Conflict(apperror.CodeOutOfTurn, "the customer opens the first round",
						"quotation_id", quotation.ID.String(), "initiator", party)
				}
			} else {
				last, err := s.lastInitiator(txCtx, quotation)
				if err != nil {
					return err
				}
				if last == party {
					return apperror.Conflict(apperror.CodeOutOfTurn, "it is the other party's turn to propose",
						"quotation_id", quotation.ID.String(), "initiator", party, "previous_initiator", last)
				}
			}
		case openRound.Initiator == party:
			return apperror.Conflict(apperror.CodeRoundAlreadyOpen, "a round is already open and awaiting the other party's response",
				"quotation_id", quotation.ID.String(), "round_id", openRound.ID.String(),
				"sequence", openRound.Sequence, "initiator", openRound.Initiator)
		default:
			// Counter-proposal: close the counterparty's round and open ours.
			openRound.Outcome = model.RoundOutcomeCountered
			openRound.ClosedAt = &now
			if err := s.negotiationRepo.CloseRound(txCtx, openRound); err != nil {
				return fmt.Errorf("failed to close countered round: %w", err)
			}
			action = model.ActionCounterPropose
		}

		sequence := quotation.RoundCount + 1
		round = &model.QuotationNegotiationLog{
			ID:          uuid.New(),
			QuotationID: quotation.ID,
			Sequence:    sequence,
			Initiator:   party,
			InitiatedBy: proposer.ID,
			Outcome:     model.RoundOutcomeOpen,
			OpenedAt:    now,
		}
		if err := s.negotiationRepo.CreateRound(txCtx, round); err != nil {
			return fmt.Errorf("failed to create round: %w", err)
		}

		if err := s.appendProposalRevisions(txCtx, quotation, round, party, req.Items, now); err != nil {
			return err
		}

		// First proposal submits the draft; a counter moves to negotiating.
		switch quotation.Status {
		case model.QuotationStatusDraft:
			if err := s.requireAllItemsPriced(txCtx, quotation); err != nil {
				return err
			}
			quotation.Status = model.QuotationStatusSubmitted
		case model.QuotationStatusSubmitted:
			quotation.Status = model.QuotationStatusNegotiating
		}

		quotation.RoundCount = sequence
		if err := s.quotationRepo.Update(txCtx, quotation); err != nil {
			return fmt.Errorf("failed to update quotation: %w", err)
		}

		if msg := strings.TrimSpace(req.Message); msg != "" {
			if _, err := s.appendMessageTx(txCtx, round, proposer, msg, now); err != nil {
				return err
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"round_id": round.ID.String(),
			"sequence": sequence,
			"items":    len(req.Items),
		})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &proposer.ID,
			Action:   action,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		return nil
	})
	if err != nil {
		return RoundResponse{}, err
	}

	s.broadcast("round_opened", map[string]interface{}{
		"quotation_id": quotationID,
		"round_id":     round.ID.String(),
		"sequence":     round.Sequence,
		"initiator":    round.Initiator,
	})

	return toRoundResponse(*round), nil
}

func (s *negotiationService) RespondAccept(ctx context.Context, quotationID, roundID, responderID string) (RoundResponse, error) {
	return s.respond(ctx, quotationID, roundID, responderID, model.RoundOutcomeAccepted)
}

func (s *negotiationService) RespondReject(ctx context.Context, quotationID, roundID, responderID string) (RoundResponse, error) {
	return s.respond(ctx, quotationID, roundID, responderID, model.RoundOutcomeRejected)
}

// respond closes the open round with a terminal outcome and finalizes the
// quotation accordingly.
func (s *negotiationService) respond(ctx context.Context, quotationID, roundID, responderID, outcome string) (RoundResponse, error) {
	qid, err := parseID("quotation_id", quotationID)
	if err != nil {
		return RoundResponse{}, err
	}
	rid, err := parseID("round_id", roundID)
	if err != nil {
		return RoundResponse{}, err
	}
	uid, err := parseID("responder_id", responderID)
	if err != nil {
		return RoundResponse{}, err
	}

	var round *model.QuotationNegotiationLog
	err = s.withQuotationLock(ctx, qid, func(txCtx context.Context, quotation *model.Quotation) error {
		if err := requireActive(quotation); err != nil {
			return err
		}

		responder, err := s.resolveParticipant(txCtx, uid)
		if err != nil {
			return err
		}
		party, err := partyOf(responder)
		if err != nil {
			return err
		}
		if err := requireParticipant(quotation, responder, party, true); err != nil {
			return err
		}

		round, err = s.negotiationRepo.FindRound(txCtx, rid)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(apperror.CodeRoundNotFound, "round not found", "round_id", roundID)
			}
			return fmt.Errorf("failed to load round: %w", err)
		}
		if round.QuotationID != quotation.ID {
			return apperror.NotFound(apperror.CodeRoundNotFound, "round does not belong to this quotation",
				"round_id", roundID, "quotation_id", quotation.ID.String())
		}
		if round.Outcome != model.RoundOutcomeOpen {
			return apperror.Conflict(apperror.CodeRoundAlreadyClosed, "round is already closed",
				"round_id", roundID, "outcome", round.Outcome)
		}
		if round.Initiator == party {
			return apperror.Conflict(apperror.CodeOutOfTurn, "a round cannot be answered by its initiator",
				"round_id", roundID, "initiator", round.Initiator)
		}

		now := time.Now()
		round.Outcome = outcome
		round.ClosedAt = &now
		if err := s.negotiationRepo.CloseRound(txCtx, round); err != nil {
			return fmt.Errorf("failed to close round: %w", err)
		}

		action := model.ActionAcceptQuotation
		quotation.Status = model.QuotationStatusAccepted
		if outcome == model.RoundOutcomeRejected {
			action = model.ActionRejectQuotation
			quotation.Status = model.QuotationStatusRejected
		}
		if err := s.quotationRepo.Update(txCtx, quotation); err != nil {
			return fmt.Errorf("failed to update quotation: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"round_id": roundID,
			"sequence": round.Sequence,
			"outcome":  outcome,
		})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &responder.ID,
			Action:   action,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		return nil
	})
	if err != nil {
		return RoundResponse{}, err
	}

	s.broadcast("round_closed", map[string]interface{}{
		"quotation_id": quotationID,
		"round_id":     round.ID.String(),
		"sequence":     round.Sequence,
		"outcome":      round.Outcome,
	})

	return toRoundResponse(*round), nil
}

// AddMessage appends a free-text note to a round. Closed rounds still accept
// trailing remarks; finalized quotations do not.
func (s *negotiationService) AddMessage(ctx context.Context, roundID, senderID, body string) (MessageResponse, error) {
	rid, err := parseID("round_id", roundID)
	if err != nil {
		return MessageResponse{}, err
	}
	uid, err := parseID("sender_id", senderID)
	if err != nil {
		return MessageResponse{}, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return MessageResponse{}, apperror.Validation(apperror.CodeEmptyMessage, "message body must not be empty",
			"round_id", roundID)
	}

	round, err := s.findRound(ctx, rid)
	if err != nil {
		return MessageResponse{}, err
	}

	var message *model.NegotiationMessage
	err = s.withQuotationLock(ctx, round.QuotationID, func(txCtx context.Context, quotation *model.Quotation) error {
		if err := requireActive(quotation); err != nil {
			return err
		}

		sender, err := s.resolveParticipant(txCtx, uid)
		if err != nil {
			return err
		}
		party, err := partyOf(sender)
		if err != nil {
			return err
		}
		if err := requireParticipant(quotation, sender, party, false); err != nil {
			return err
		}

		now := time.Now()
		message, err = s.appendMessageTx(txCtx, round, sender, body, now)
		if err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]interface{}{
			"round_id":   roundID,
			"message_id": message.ID.String(),
		})
		audit := &model.AuditLog{
			ID:       uuid.New(),
			UserID:   &sender.ID,
			Action:   model.ActionAddMessage,
			EntityID: quotation.ID.String(),
			Details:  string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		return nil
	})
	if err != nil {
		return MessageResponse{}, err
	}

	s.broadcast("message_added", map[string]interface{}{
		"quotation_id": round.QuotationID.String(),
		"round_id":     roundID,
		"message_id":   message.ID.String(),
	})

	resp := toMessageResponse(*message)
	return resp, nil
}

func (s *negotiationService) ListMessages(ctx context.Context, roundID string, page, limit int) ([]MessageResponse, int64, error) {
	rid, err := parseID("round_id", roundID)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.findRound(ctx, rid); err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	messages, total, err := s.negotiationRepo.ListMessages(ctx, rid, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	res := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, toMessageResponse(m))
	}
	return res, total, nil
}

// --- Helpers ---

func (s *negotiationService) resolveParticipant(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound(apperror.CodeParticipantNotFound, "participant not found",
				"user_id", id.String())
		}
		return nil, fmt.Errorf("failed to resolve participant: %w", err)
	}
	return user, nil
}

func (s *negotiationService) findRound(ctx context.Context, id uuid.UUID) (*model.QuotationNegotiationLog, error) {
	round, err := s.negotiationRepo.FindRound(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound(apperror.CodeRoundNotFound, "round not found", "round_id", id.String())
		}
		return nil, fmt.Errorf("failed to load round: %w", err)
	}
	return round, nil
}

// lastInitiator returns the initiator of the quotation's highest round, or ""
// when no rounds exist. Only called under the quotation lock.
func (s *negotiationService) lastInitiator(ctx context.Context, quotation *model.Quotation) (string, error) {
	rounds, err := s.negotiationRepo.ListRounds(ctx, quotation.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load round history: %w", err)
	}
	if len(rounds) == 0 {
		return "", nil
	}
	return rounds[len(rounds)-1].Initiator, nil
}

// appendProposalRevisions creates one revision per proposed line item after
// validating ownership, bounds, and unit consistency.
func (s *negotiationService) appendProposalRevisions(ctx context.Context, quotation *model.Quotation, round *model.QuotationNegotiationLog, party string, items []ProposalItemRequest, at time.Time) error {
	seen := make(map[uuid.UUID]bool, len(items))
	for _, itemReq := range items {
		itemID, err := parseID("line_item_id", itemReq.LineItemID)
		if err != nil {
			return err
		}
		if seen[itemID] {
			return apperror.Validation(apperror.CodeInvalidProposal, "duplicate line item in proposal",
				"line_item_id", itemReq.LineItemID)
		}
		seen[itemID] = true

		item, err := s.lineItemRepo.FindByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(apperror.CodeLineItemNotFound, "line item not found",
					"line_item_id", itemReq.LineItemID)
			}
			return fmt.Errorf("failed to load line item: %w", err)
		}
		if item.QuotationID != quotation.ID {
			return apperror.NotFound(apperror.CodeLineItemNotFound, "line item does not belong to this quotation",
				"line_item_id", itemReq.LineItemID, "quotation_id", quotation.ID.String())
		}

		if itemReq.Quantity <= 0 {
			return apperror.Validation(apperror.CodeInvalidProposal, "quantity must be positive",
				"line_item_id", itemReq.LineItemID, "quantity", itemReq.Quantity)
		}
		price, err := decimal.NewFromString(itemReq.Price)
		if err != nil {
			return apperror.Validation(apperror.CodeInvalidProposal, "price is not a valid decimal",
				"line_item_id", itemReq.LineItemID, "price", itemReq.Price)
		}
		if price.IsNegative() {
			return apperror.Validation(apperror.CodeInvalidProposal, "price must not be negative",
				"line_item_id", itemReq.LineItemID, "price", itemReq.Price)
		}

		// Units are fixed for the lifetime of the line item; a proposal under
		// a different unit would make the price history incomparable.
		if itemReq.MonetaryUnit != "" && itemReq.MonetaryUnit != item.MonetaryUnit {
			return apperror.Conflict(apperror.CodeUnitMismatch, "proposal monetary unit differs from the line item's unit",
				"line_item_id", itemReq.LineItemID, "expected", item.MonetaryUnit, "actual", itemReq.MonetaryUnit)
		}
		if itemReq.QuantityType != "" && itemReq.QuantityType != item.QuantityType {
			return apperror.Conflict(apperror.CodeUnitMismatch, "proposal quantity type differs from the line item's unit",
				"line_item_id", itemReq.LineItemID, "expected", item.QuantityType, "actual", itemReq.QuantityType)
		}

		if _, err := s.lineItemRepo.AppendRevision(ctx, item, itemReq.Quantity, price, party, round.ID, at); err != nil {
			return fmt.Errorf("failed to append revision: %w", err)
		}
	}
	return nil
}

// requireAllItemsPriced guards the Draft -> Submitted transition: a quotation
// may only be submitted once every listed line item carries a first revision.
func (s *negotiationService) requireAllItemsPriced(ctx context.Context, quotation *model.Quotation) error {
	items, err := s.lineItemRepo.ListByQuotation(ctx, quotation.ID)
	if err != nil {
		return fmt.Errorf("failed to list line items: %w", err)
	}
	if len(items) == 0 {
		return apperror.Validation(apperror.CodeQuotationEmpty, "a quotation needs at least one line item before submission",
			"quotation_id", quotation.ID.String())
	}
	for _, item := range items {
		if item.LatestVersion < 0 {
			return apperror.Validation(apperror.CodeUnpricedLineItem, "the first proposal must price every line item",
				"quotation_id", quotation.ID.String(), "line_item_id", item.ID.String())
		}
	}
	return nil
}

func (s *negotiationService) appendMessageTx(ctx context.Context, round *model.QuotationNegotiationLog, sender *model.User, body string, at time.Time) (*model.NegotiationMessage, error) {
	count, err := s.negotiationRepo.CountMessages(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	message := &model.NegotiationMessage{
		ID:        uuid.New(),
		RoundID:   round.ID,
		MessageNo: int(count) + 1,
		SenderID:  sender.ID,
		Sender:    sender,
		Body:      body,
		SentAt:    at,
	}
	if err := s.negotiationRepo.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return message, nil
}

func (s *negotiationService) broadcast(event string, data map[string]interface{}) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(NegotiationEvent{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case s.hub.Broadcast <- payload:
	default:
		// Hub not running or saturated; events are best-effort
	}
}

func toRevisionResponse(rev model.ProductDetailQuotationRevision) RevisionResponse {
	resp := RevisionResponse{
		ID:         rev.ID.String(),
		Version:    rev.Version,
		Quantity:   rev.Quantity,
		Price:      rev.Price.StringFixed(4),
		ProposedBy: rev.ProposedBy,
		CreatedAt:  rev.CreatedAt.Format(time.RFC3339),
	}
	if rev.RoundID != nil {
		resp.RoundID = rev.RoundID.String()
	}
	return resp
}

func toMessageResponse(m model.NegotiationMessage) MessageResponse {
	resp := MessageResponse{
		ID:       m.ID.String(),
		RoundID:  m.RoundID.String(),
		SenderID: m.SenderID.String(),
		Body:     m.Body,
		SentAt:   m.SentAt.Format(time.RFC3339),
	}
	if m.Sender != nil {
		resp.SenderName = m.Sender.Username
	}
	return resp
}

func toRoundResponse(r model.QuotationNegotiationLog) RoundResponse {
	resp := RoundResponse{
		ID:        r.ID.String(),
		Sequence:  r.Sequence,
		Initiator: r.Initiator,
		Outcome:   r.Outcome,
		OpenedAt:  r.OpenedAt.Format(time.RFC3339),
	}
	if r.ClosedAt != nil {
		closed := r.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &closed
	}
	for _, m := range r.Messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	return resp
}
