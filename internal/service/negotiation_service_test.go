package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
)

func TestProposeOpensFirstRound(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA, fx.detailB)

	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if round.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", round.Sequence)
	}
	if round.Initiator != model.PartyCustomer {
		t.Errorf("expected customer initiator, got %s", round.Initiator)
	}
	if round.Outcome != model.RoundOutcomeOpen {
		t.Errorf("expected OPEN outcome, got %s", round.Outcome)
	}

	snapshot, err := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Status != model.QuotationStatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", snapshot.Status)
	}
	for _, item := range snapshot.LineItems {
		if item.CurrentRevision == nil {
			t.Fatalf("line item %s has no current revision", item.ID)
		}
		if item.CurrentRevision.Version != 0 {
			t.Errorf("expected version 0, got %d", item.CurrentRevision.Version)
		}
	}
}

func TestStaffCannotOpenFirstRound(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	_, err := fx.proposeAll(t, quotationID, fx.staff.ID.String(), itemIDs, 5, "20.00")
	if !apperror.IsCode(err, apperror.CodeOutOfTurn) {
		t.Fatalf("expected OUT_OF_TURN, got %v", err)
	}
}

func TestCounterProposalClosesAndOpensRound(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	first, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("customer propose: %v", err)
	}

	second, err := fx.proposeAll(t, quotationID, fx.staff.ID.String(), itemIDs, 10, "23.00")
	if err != nil {
		t.Fatalf("staff counter: %v", err)
	}
	if second.Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", second.Sequence)
	}
	if second.Initiator != model.PartyStaff {
		t.Errorf("expected staff initiator, got %s", second.Initiator)
	}

	snapshot, err := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Status != model.QuotationStatusNegotiating {
		t.Errorf("expected NEGOTIATING, got %s", snapshot.Status)
	}
	if len(snapshot.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(snapshot.Rounds))
	}
	if snapshot.Rounds[0].ID != first.ID || snapshot.Rounds[0].Outcome != model.RoundOutcomeCountered {
		t.Errorf("expected round 1 COUNTERED, got %s", snapshot.Rounds[0].Outcome)
	}
	if snapshot.Rounds[1].Outcome != model.RoundOutcomeOpen {
		t.Errorf("expected round 2 OPEN, got %s", snapshot.Rounds[1].Outcome)
	}

	// The counter produced version 1 on the line item
	if got := snapshot.LineItems[0].CurrentRevision.Version; got != 1 {
		t.Errorf("expected current version 1, got %d", got)
	}
	if got := snapshot.LineItems[0].CurrentRevision.ProposedBy; got != model.PartyStaff {
		t.Errorf("expected staff revision, got %s", got)
	}
}

func TestProposeWhileOwnRoundOpen(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	if _, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	_, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "19.00")
	if !apperror.IsCode(err, apperror.CodeRoundAlreadyOpen) {
		t.Fatalf("expected ROUND_ALREADY_OPEN, got %v", err)
	}
}

func TestFirstProposalMustPriceEveryItem(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA, fx.detailB)

	// Price only the first of two line items
	_, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs[:1], 10, "20.00")
	if !apperror.IsCode(err, apperror.CodeUnpricedLineItem) {
		t.Fatalf("expected UNPRICED_LINE_ITEM, got %v", err)
	}
}

func TestProposalUnitMismatch(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	_, err := fx.negotiations.Propose(context.Background(), quotationID, fx.customer.ID.String(), ProposeRequest{
		Items: []ProposalItemRequest{{
			LineItemID:   itemIDs[0],
			Quantity:     10,
			Price:        "20.00",
			MonetaryUnit: "EUR", // Line item is fixed to USD
		}},
	})
	if !apperror.IsCode(err, apperror.CodeUnitMismatch) {
		t.Fatalf("expected UNIT_MISMATCH, got %v", err)
	}
}

func TestProposalValidation(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	cases := []struct {
		name     string
		quantity int
		price    string
	}{
		{"zero quantity", 0, "20.00"},
		{"negative price", 5, "-1.00"},
		{"malformed price", 5, "twenty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, tc.quantity, tc.price)
			if !apperror.IsCode(err, apperror.CodeInvalidProposal) {
				t.Fatalf("expected INVALID_PROPOSAL, got %v", err)
			}
		})
	}
}

func TestAcceptFinalizesQuotation(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	closed, err := fx.negotiations.RespondAccept(context.Background(), quotationID, round.ID, fx.staff.ID.String())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if closed.Outcome != model.RoundOutcomeAccepted {
		t.Errorf("expected ACCEPTED outcome, got %s", closed.Outcome)
	}

	snapshot, _ := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if snapshot.Status != model.QuotationStatusAccepted {
		t.Errorf("expected ACCEPTED quotation, got %s", snapshot.Status)
	}

	// No further proposals once finalized
	_, err = fx.proposeAll(t, quotationID, fx.staff.ID.String(), itemIDs, 10, "21.00")
	if !apperror.IsKind(err, apperror.KindFinalized) {
		t.Fatalf("expected finalized-state error, got %v", err)
	}
}

func TestRejectFinalizesQuotation(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	if _, err := fx.negotiations.RespondReject(context.Background(), quotationID, round.ID, fx.staff.ID.String()); err != nil {
		t.Fatalf("reject: %v", err)
	}

	snapshot, _ := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if snapshot.Status != model.QuotationStatusRejected {
		t.Errorf("expected REJECTED quotation, got %s", snapshot.Status)
	}
}

func TestInitiatorCannotAnswerOwnRound(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	_, err = fx.negotiations.RespondAccept(context.Background(), quotationID, round.ID, fx.customer.ID.String())
	if !apperror.IsCode(err, apperror.CodeOutOfTurn) {
		t.Fatalf("expected OUT_OF_TURN, got %v", err)
	}
}

func TestRespondToClosedRound(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	first, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	// Staff counters, closing round 1
	if _, err := fx.proposeAll(t, quotationID, fx.staff.ID.String(), itemIDs, 10, "23.00"); err != nil {
		t.Fatalf("counter: %v", err)
	}

	_, err = fx.negotiations.RespondAccept(context.Background(), quotationID, first.ID, fx.staff.ID.String())
	if !apperror.IsCode(err, apperror.CodeRoundAlreadyClosed) {
		t.Fatalf("expected ROUND_ALREADY_CLOSED, got %v", err)
	}
}

func TestOutsiderCannotNegotiate(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	stranger := seedUser(t, fx.db, "carol", "carol@example.com", model.RoleCustomer)
	_, err := fx.proposeAll(t, quotationID, stranger.ID.String(), itemIDs, 10, "20.00")
	if !apperror.IsCode(err, apperror.CodeNotParticipant) {
		t.Fatalf("expected NOT_PARTICIPANT, got %v", err)
	}

	// Admins administer; they do not negotiate
	_, err = fx.proposeAll(t, quotationID, fx.admin.ID.String(), itemIDs, 10, "20.00")
	if !apperror.IsCode(err, apperror.CodeNotParticipant) {
		t.Fatalf("expected NOT_PARTICIPANT for admin, got %v", err)
	}
}

func TestStaffAssignmentSticks(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	if _, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := fx.proposeAll(t, quotationID, fx.staff.ID.String(), itemIDs, 10, "23.00"); err != nil {
		t.Fatalf("counter: %v", err)
	}

	// A second staff member cannot take over an assigned quotation
	other := seedUser(t, fx.db, "dave", "dave@example.com", model.RoleStaff)
	_, err := fx.proposeAll(t, quotationID, other.ID.String(), itemIDs, 10, "22.00")
	if !apperror.IsCode(err, apperror.CodeNotParticipant) {
		t.Fatalf("expected NOT_PARTICIPANT, got %v", err)
	}

	snapshot, _ := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if snapshot.StaffID == nil || *snapshot.StaffID != fx.staff.ID.String() {
		t.Errorf("expected quotation assigned to %s", fx.staff.ID)
	}
}

func TestRevisionVersionsStayDense(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	prices := []string{"20.00", "24.00", "21.00", "23.00"}
	proposers := []string{
		fx.customer.ID.String(), fx.staff.ID.String(),
		fx.customer.ID.String(), fx.staff.ID.String(),
	}
	for i := range prices {
		if _, err := fx.proposeAll(t, quotationID, proposers[i], itemIDs, 10, prices[i]); err != nil {
			t.Fatalf("propose %d: %v", i, err)
		}
	}

	revisions, err := fx.quotations.ListRevisions(context.Background(), quotationID, itemIDs[0])
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(revisions) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(revisions))
	}
	for i, rev := range revisions {
		if rev.Version != i {
			t.Errorf("expected version %d, got %d", i, rev.Version)
		}
		if rev.Price != prices[i]+"00" { // StringFixed(4) pads 2dp input
			t.Errorf("expected price %s00, got %s", prices[i], rev.Price)
		}
	}

	snapshot, _ := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if snapshot.RoundCount != 4 {
		t.Errorf("expected 4 rounds, got %d", snapshot.RoundCount)
	}
	for i, round := range snapshot.Rounds {
		if round.Sequence != i+1 {
			t.Errorf("expected sequence %d, got %d", i+1, round.Sequence)
		}
	}
}

func TestMessagesKeepConversationOrder(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	ctx := context.Background()
	bodies := []string{"Can you do better on volume?", "We ship in 3 weeks", "Deal depends on the rate"}
	senders := []string{fx.customer.ID.String(), fx.staff.ID.String(), fx.customer.ID.String()}
	for i, body := range bodies {
		if _, err := fx.negotiations.AddMessage(ctx, round.ID, senders[i], body); err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}

	messages, total, err := fx.negotiations.ListMessages(ctx, round.ID, 1, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 messages, got %d", total)
	}
	for i, msg := range messages {
		if msg.Body != bodies[i] {
			t.Errorf("message %d out of order: got %q", i, msg.Body)
		}
	}
}

func TestAddMessageValidation(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	ctx := context.Background()
	if _, err := fx.negotiations.AddMessage(ctx, round.ID, fx.customer.ID.String(), "   \n\t "); !apperror.IsCode(err, apperror.CodeEmptyMessage) {
		t.Fatalf("expected EMPTY_MESSAGE, got %v", err)
	}

	// Finalize and verify the thread is closed for writing
	if _, err := fx.negotiations.RespondAccept(ctx, quotationID, round.ID, fx.staff.ID.String()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := fx.negotiations.AddMessage(ctx, round.ID, fx.customer.ID.String(), "one more thing"); !apperror.IsKind(err, apperror.KindFinalized) {
		t.Fatalf("expected finalized-state error, got %v", err)
	}
}

func TestProposalMessageAttachesToRound(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	_, err := fx.negotiations.Propose(context.Background(), quotationID, fx.customer.ID.String(), ProposeRequest{
		Items:   []ProposalItemRequest{{LineItemID: itemIDs[0], Quantity: 10, Price: "20.00"}},
		Message: "  opening offer  ",
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	snapshot, _ := fx.quotations.GetSnapshot(context.Background(), quotationID)
	if len(snapshot.Rounds) != 1 || len(snapshot.Rounds[0].Messages) != 1 {
		t.Fatalf("expected 1 round with 1 message")
	}
	if got := snapshot.Rounds[0].Messages[0].Body; got != "opening offer" {
		t.Errorf("expected trimmed body, got %q", got)
	}
}

func TestNegotiationAuditTrail(t *testing.T) {
	fx := newFixture(t)
	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)

	ctx := context.Background()
	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := fx.negotiations.RespondAccept(ctx, quotationID, round.ID, fx.staff.ID.String()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	logs, total, err := fx.audits.GetAuditLogs(ctx, model.ActionPropose, 1, 10)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 PROPOSE entry, got %d", total)
	}
	if logs[0].EntityID != quotationID {
		t.Errorf("expected entity %s, got %s", quotationID, logs[0].EntityID)
	}

	if _, total, _ = fx.audits.GetAuditLogs(ctx, model.ActionAcceptQuotation, 1, 10); total != 1 {
		t.Errorf("expected 1 ACCEPT_QUOTATION entry, got %d", total)
	}
}

// failingRoundHistoryRepo breaks the round history read while leaving the rest
// of the repository intact.
type failingRoundHistoryRepo struct {
	repository.NegotiationRepository
}

func (failingRoundHistoryRepo) ListRounds(ctx context.Context, quotationID uuid.UUID) ([]model.QuotationNegotiationLog, error) {
	return nil, errors.New("round history unavailable")
}

func TestProposeSurfacesRoundHistoryFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA)
	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "20.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Leave the log with a countered round and nothing open
	if err := fx.db.Model(&model.QuotationNegotiationLog{}).Where("id = ?", round.ID).
		Updates(map[string]interface{}{"outcome": model.RoundOutcomeCountered, "closed_at": time.Now()}).Error; err != nil {
		t.Fatalf("close round: %v", err)
	}

	// Alternation reads the closed history: the customer went last
	if _, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 10, "19.00"); !apperror.IsCode(err, apperror.CodeOutOfTurn) {
		t.Fatalf("expected OUT_OF_TURN, got %v", err)
	}

	// A failed history read must abort the proposal instead of letting it
	// pass as an opening move
	negotiations := NewNegotiationService(
		repository.NewQuotationRepository(fx.db),
		repository.NewLineItemRepository(fx.db),
		failingRoundHistoryRepo{repository.NewNegotiationRepository(fx.db)},
		repository.NewUserRepository(fx.db),
		repository.NewAuditRepository(fx.db),
		repository.NewTransactionManager(fx.db),
		nil,
	)
	_, err = negotiations.Propose(ctx, quotationID, fx.customer.ID.String(), ProposeRequest{
		Items: []ProposalItemRequest{{LineItemID: itemIDs[0], Quantity: 10, Price: "19.00"}},
	})
	if err == nil || apperror.IsCode(err, apperror.CodeOutOfTurn) {
		t.Fatalf("expected the history failure to surface, got %v", err)
	}
}
