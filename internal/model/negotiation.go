package model

import (
	"time"

	"github.com/google/uuid"
)

// Initiator enum constants (who made the move in a round/revision)
const (
	PartyCustomer = "CUSTOMER"
	PartyStaff    = "STAFF"
)

// RoundOutcome enum constants
const (
	RoundOutcomeOpen      = "OPEN"
	RoundOutcomeCountered = "COUNTERED"
	RoundOutcomeAccepted  = "ACCEPTED"
	RoundOutcomeRejected  = "REJECTED"
)

// QuotationNegotiationLog is one exchange turn in the negotiation. Sequence
// numbers are dense per quotation starting at 1 and at most one round per
// quotation is OPEN at a time; both are enforced under the quotation's
// optimistic lock.
type QuotationNegotiationLog struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	QuotationID uuid.UUID            `gorm:"type:uuid;not null;index:idx_round_quotation_seq,unique" json:"quotation_id"`
	Sequence    int                  `gorm:"not null;index:idx_round_quotation_seq,unique" json:"sequence"`
	Initiator   string               `gorm:"type:varchar(20);not null" json:"initiator"` // CUSTOMER, STAFF
	InitiatedBy uuid.UUID            `gorm:"type:uuid;not null" json:"initiated_by"`
	Outcome     string               `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"outcome"`
	Messages    []NegotiationMessage `gorm:"foreignKey:RoundID" json:"messages,omitempty"`
	OpenedAt    time.Time            `gorm:"autoCreateTime" json:"opened_at"`
	ClosedAt    *time.Time           `json:"closed_at"`
}

// NegotiationMessage is a free-text note attached to a round. Immutable once
// created. MessageNo preserves insertion order inside the round so reads can
// break sent-time ties deterministically.
type NegotiationMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoundID   uuid.UUID `gorm:"type:uuid;not null;index:idx_message_round_no,unique" json:"round_id"`
	MessageNo int       `gorm:"not null;index:idx_message_round_no,unique" json:"message_no"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Sender    *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	SentAt    time.Time `gorm:"index" json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
}
