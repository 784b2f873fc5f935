package models

import (
	"cpass/src/types"

	"github.com/google/uuid"
)

type Transaction struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`

	TicketID    uuid.UUID             `gorm:"index;type:uuid" json:"ticket_id"`
	UserID      string                `json:"user_id"`
	Kind        types.TransactionKind `json:"kind"`
	AmountCents int64                 `json:"amount_cents"`
	Currency    string                `json:"currency"`
	Reference   string                `json:"reference"`
	Status      string                `gorm:"default:'completed'" json:"status"`

	types.Timestamps
}
