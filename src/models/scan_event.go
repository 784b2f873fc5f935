package models

import (
	"cpass/src/types"
	"time"

	"github.com/google/uuid"
)

// TicketIDUnknown is recorded when a scanned code resolves to no ticket.
// The ledger keeps the row anyway; unknown-code attempts are exactly what
// fraud review wants to see.
const TicketIDUnknown = "unknown"

// ScanEvent is an append-only ledger row. There are no update or delete
// paths anywhere in the codebase.
type ScanEvent struct {
	ID         uuid.UUID         `gorm:"primarykey;type:uuid" json:"id"`
	TicketID   string            `gorm:"index" json:"ticket_id"`
	TicketCode string            `gorm:"index" json:"ticket_code"`
	ScannedAt  time.Time         `json:"scanned_at"`
	ScannedBy  string            `json:"scanned_by"`
	Outcome    types.ScanOutcome `json:"outcome"`
}

func (ScanEvent) TableName() string {
	return "scan_events"
}
