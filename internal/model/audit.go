package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateProduct       = "CREATE_PRODUCT"
	ActionCreateProductDetail = "CREATE_PRODUCT_DETAIL"

	// Negotiation workflow actions
	ActionCreateQuotation = "CREATE_QUOTATION"
	ActionAddLineItem     = "ADD_LINE_ITEM"
	ActionRemoveLineItem  = "REMOVE_LINE_ITEM"
	ActionPropose         = "PROPOSE"
	ActionCounterPropose  = "COUNTER_PROPOSE"
	ActionAcceptQuotation = "ACCEPT_QUOTATION"
	ActionRejectQuotation = "REJECT_QUOTATION"
	ActionCancelQuotation = "CANCEL_QUOTATION"
	ActionAddMessage      = "ADD_NEGOTIATION_MESSAGE"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated bot
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:text" json:"details"`                       // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
