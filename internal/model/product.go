package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog product that can be quoted
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Description string          `gorm:"type:text" json:"description"`
	Details     []ProductDetail `gorm:"foreignKey:ProductID" json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// ProductDetail is a sellable variant of a Product. Its display price is the
// catalog list price; negotiated prices live on quotation revisions.
type ProductDetail struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product      *Product        `gorm:"foreignKey:ProductID" json:"-"`
	DisplayPrice decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"display_price"`
	MonetaryUnit string          `gorm:"type:varchar(256);not null" json:"monetary_unit"` // e.g. USD
	QuantityType string          `gorm:"type:varchar(256);not null" json:"quantity_type"` // e.g. unit, m2
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}
