package service

import (
	"context"
	"testing"
	"time"
)

func TestStatisticsValueCountsLiveItemsOnly(t *testing.T) {
	fx := newFixture(t)
	stats := NewStatisticsService(fx.db)
	ctx := context.Background()

	quotationID, itemIDs := fx.newQuotationWithItems(t, fx.detailA, fx.detailB)
	round, err := fx.proposeAll(t, quotationID, fx.customer.ID.String(), itemIDs, 1, "100.00")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := fx.quotations.RemoveLineItem(ctx, quotationID, itemIDs[1], fx.customer.ID.String()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := fx.negotiations.RespondAccept(ctx, quotationID, round.ID, fx.staff.ID.String()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	res, err := stats.GetStatistics(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	// Only the surviving line item's current revision counts
	if res.AcceptedValue != 100 {
		t.Errorf("expected accepted value 100, got %v", res.AcceptedValue)
	}
	if res.AverageRounds != 1 {
		t.Errorf("expected average of 1 round, got %v", res.AverageRounds)
	}
}
