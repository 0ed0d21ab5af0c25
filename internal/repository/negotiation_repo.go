package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NegotiationRepository persists the round log and the message threads hanging
// off each round. Round sequence assignment happens in the service layer under
// the quotation lock; this layer only stores and reads.
type NegotiationRepository interface {
	CreateRound(ctx context.Context, round *model.QuotationNegotiationLog) error
	FindRound(ctx context.Context, id uuid.UUID) (*model.QuotationNegotiationLog, error)
	OpenRound(ctx context.Context, quotationID uuid.UUID) (*model.QuotationNegotiationLog, error)
	CloseRound(ctx context.Context, round *model.QuotationNegotiationLog) error
	ListRounds(ctx context.Context, quotationID uuid.UUID) ([]model.QuotationNegotiationLog, error)
	CreateMessage(ctx context.Context, message *model.NegotiationMessage) error
	CountMessages(ctx context.Context, roundID uuid.UUID) (int64, error)
	ListMessages(ctx context.Context, roundID uuid.UUID, page, limit int) ([]model.NegotiationMessage, int64, error)
}

type negotiationRepository struct {
	db *gorm.DB
}

func NewNegotiationRepository(db *gorm.DB) NegotiationRepository {
	return &negotiationRepository{db: db}
}

func (r *negotiationRepository) CreateRound(ctx context.Context, round *model.QuotationNegotiationLog) error {
	return GetDB(ctx, r.db).Create(round).Error
}

func (r *negotiationRepository) FindRound(ctx context.Context, id uuid.UUID) (*model.QuotationNegotiationLog, error) {
	var round model.QuotationNegotiationLog
	if err := GetDB(ctx, r.db).First(&round, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &round, nil
}

// OpenRound returns the quotation's single awaiting-response round, or
// (nil, nil) when every round is closed.
func (r *negotiationRepository) OpenRound(ctx context.Context, quotationID uuid.UUID) (*model.QuotationNegotiationLog, error) {
	var round model.QuotationNegotiationLog
	err := GetDB(ctx, r.db).
		First(&round, "quotation_id = ? AND outcome = ?", quotationID, model.RoundOutcomeOpen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &round, nil
}

func (r *negotiationRepository) CloseRound(ctx context.Context, round *model.QuotationNegotiationLog) error {
	return GetDB(ctx, r.db).Model(round).
		Updates(map[string]interface{}{
			"outcome":   round.Outcome,
			"closed_at": round.ClosedAt,
		}).Error
}

func (r *negotiationRepository) ListRounds(ctx context.Context, quotationID uuid.UUID) ([]model.QuotationNegotiationLog, error) {
	var rounds []model.QuotationNegotiationLog
	if err := GetDB(ctx, r.db).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sent_at ASC, message_no ASC")
		}).
		Where("quotation_id = ?", quotationID).
		Order("sequence ASC").
		Find(&rounds).Error; err != nil {
		return nil, err
	}
	return rounds, nil
}

func (r *negotiationRepository) CreateMessage(ctx context.Context, message *model.NegotiationMessage) error {
	return GetDB(ctx, r.db).Create(message).Error
}

func (r *negotiationRepository) CountMessages(ctx context.Context, roundID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.NegotiationMessage{}).
		Where("round_id = ?", roundID).Count(&count).Error
	return count, err
}

// ListMessages is a finite, restartable ordered read: sent time ascending,
// insertion order breaking ties.
func (r *negotiationRepository) ListMessages(ctx context.Context, roundID uuid.UUID, page, limit int) ([]model.NegotiationMessage, int64, error) {
	var messages []model.NegotiationMessage
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.NegotiationMessage{}).Where("round_id = ?", roundID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.
		Preload("Sender").
		Where("round_id = ?", roundID).
		Order("sent_at ASC, message_no ASC").
		Offset(offset).Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}
