package models

import (
	"cpass/src/types"
	"time"

	"github.com/google/uuid"
)

type Ticket struct {
	ID         uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	UserID     string    `gorm:"index" json:"user_id"`
	EventID    string    `gorm:"index" json:"event_id"`
	TierName   string    `json:"tier_name"`
	TicketCode string    `gorm:"uniqueIndex" json:"ticket_code"`

	Quantity        int    `json:"quantity"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Currency        string `json:"currency"`

	Status        types.TicketStatus   `gorm:"default:'confirmed'" json:"status"`
	PaymentStatus types.PaymentStatus  `json:"payment_status"`
	Priority      types.TicketPriority `json:"priority"`

	ScanCount     int        `json:"scan_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`

	StripePaymentIntentId *string `json:"-"`

	// ExpiresAt drives the expiry sweep; tickets with no deadline are
	// never auto-expired.
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`

	WalletPasses types.WalletPasses `gorm:"type:jsonb;default:'{}'" json:"wallet_passes"`
	History      types.History      `gorm:"type:jsonb" json:"history"`
	AuditTrail   types.AuditTrail   `gorm:"type:jsonb" json:"audit_trail"`

	types.Timestamps
}
