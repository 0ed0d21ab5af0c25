package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuotationStatus enum constants
const (
	QuotationStatusDraft       = "DRAFT"
	QuotationStatusSubmitted   = "SUBMITTED"
	QuotationStatusNegotiating = "NEGOTIATING"
	QuotationStatusAccepted    = "ACCEPTED"
	QuotationStatusRejected    = "REJECTED"
	QuotationStatusCancelled   = "CANCELLED"
)

// IsTerminalQuotationStatus reports whether no further negotiation is possible
func IsTerminalQuotationStatus(status string) bool {
	return status == QuotationStatusAccepted ||
		status == QuotationStatusRejected ||
		status == QuotationStatusCancelled
}

// Quotation is one negotiation session between a customer and a staff member.
// LockVersion is the optimistic concurrency token: every mutating operation
// claims it (compare-and-increment) so at most one writer per quotation wins.
type Quotation struct {
	ID          uuid.UUID                 `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID  uuid.UUID                 `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer    *User                     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	StaffID     *uuid.UUID                `gorm:"type:uuid;index" json:"staff_id"` // Assigned on first staff action
	Staff       *User                     `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
	Status      string                    `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	LockVersion int64                     `gorm:"not null;default:0" json:"-"`
	RoundCount  int                       `gorm:"not null;default:0" json:"round_count"` // Highest round sequence issued
	Note        string                    `gorm:"type:text" json:"note"`
	LineItems   []ProductDetailQuotation  `gorm:"foreignKey:QuotationID" json:"line_items,omitempty"`
	Rounds      []QuotationNegotiationLog `gorm:"foreignKey:QuotationID" json:"rounds,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	DeletedAt   gorm.DeletedAt            `gorm:"index" json:"-"` // Quotations are archived, never hard-deleted
}

// ProductDetailQuotation is one catalog item under negotiation within a
// quotation. MonetaryUnit and QuantityType are fixed once the first revision
// exists; changing them mid-negotiation would invalidate price comparisons.
// LatestVersion is the incrementally maintained current-revision index
// (-1 means the item is listed but not yet priced).
// (quotation_id, product_detail_id) is unique among live rows only; a removed
// detail can be re-added. The check runs in the service under the quotation
// lock, so a DB-level unique index (which would also count soft-deleted rows)
// is deliberately absent.
type ProductDetailQuotation struct {
	ID              uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	QuotationID     uuid.UUID                        `gorm:"type:uuid;not null;index:idx_line_item_quotation" json:"quotation_id"`
	ProductDetailID uuid.UUID                        `gorm:"type:uuid;not null;index" json:"product_detail_id"`
	ProductDetail   *ProductDetail                   `gorm:"foreignKey:ProductDetailID" json:"product_detail,omitempty"`
	MonetaryUnit    string                           `gorm:"type:varchar(256);not null" json:"monetary_unit"`
	QuantityType    string                           `gorm:"type:varchar(256);not null" json:"quantity_type"`
	LatestVersion   int                              `gorm:"not null;default:-1" json:"latest_version"`
	Revisions       []ProductDetailQuotationRevision `gorm:"foreignKey:ProductDetailQuotationID" json:"revisions,omitempty"`
	CreatedAt       time.Time                        `json:"created_at"`
	UpdatedAt       time.Time                        `json:"updated_at"`
	DeletedAt       gorm.DeletedAt                   `gorm:"index" json:"-"`
}

// ProductDetailQuotationRevision is one immutable point-in-time proposal for a
// line item. Versions are dense per line item: 0, 1, 2, ... Rows are append-only;
// the row is never updated or renumbered once written.
type ProductDetailQuotationRevision struct {
	ID                       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductDetailQuotationID uuid.UUID       `gorm:"type:uuid;not null;index:idx_revision_item_version,unique" json:"product_detail_quotation_id"`
	Version                  int             `gorm:"not null;default:0;index:idx_revision_item_version,unique" json:"version"`
	Quantity                 int             `gorm:"not null" json:"quantity"`
	Price                    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price"`
	ProposedBy               string          `gorm:"type:varchar(20);not null" json:"proposed_by"` // CUSTOMER, STAFF
	RoundID                  *uuid.UUID      `gorm:"type:uuid;index" json:"round_id"`              // Non-owning back-ref to the round that produced it
	DeletedAt                gorm.DeletedAt  `gorm:"index" json:"-"`                               // Cascaded only when the line item is removed
	CreatedAt                time.Time       `json:"created_at"`
}
