package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type TicketStatus string

const (
	TICKET_CONFIRMED TicketStatus = "confirmed"
	TICKET_USED      TicketStatus = "used"
	TICKET_CANCELLED TicketStatus = "cancelled"
	TICKET_EXPIRED   TicketStatus = "expired"
)

// Terminal reports whether no transition leads out of the status.
func (s TicketStatus) Terminal() bool {
	return s != TICKET_CONFIRMED
}

type PaymentStatus string

const (
	PAYMENT_PAID     PaymentStatus = "paid"
	PAYMENT_REFUNDED PaymentStatus = "refunded"
	PAYMENT_FAILED   PaymentStatus = "failed"
)

type TicketPriority string

const (
	PRIORITY_NORMAL TicketPriority = "normal"
	PRIORITY_HIGH   TicketPriority = "high"
	PRIORITY_VIP    TicketPriority = "vip"
)

type ScanOutcome string

const (
	SCAN_ACCEPTED  ScanOutcome = "accepted"
	SCAN_DUPLICATE ScanOutcome = "duplicate"
	SCAN_REJECTED  ScanOutcome = "rejected"
)

type TransactionKind string

const (
	TXN_CHARGE TransactionKind = "charge"
	TXN_REFUND TransactionKind = "refund"
)

// Audit actions recorded on the ticket's trail.
const (
	AUDIT_TICKET_CREATED    = "ticket_created"
	AUDIT_TICKET_SCANNED    = "ticket_scanned"
	AUDIT_TICKET_CANCELLED  = "ticket_cancelled"
	AUDIT_TICKET_EXPIRED    = "ticket_expired"
	AUDIT_PASS_ISSUED       = "wallet_pass_issued"
	AUDIT_REFUND_RECONCILED = "refund_reconciled"
)

type HistoryEntry struct {
	At     time.Time    `json:"at"`
	Status TicketStatus `json:"status"`
	Note   string       `json:"note"`
}

// History is the status-only trail. Entries are appended once per status
// transition and never rewritten.
type History []HistoryEntry

func (h History) Value() (driver.Value, error) {
	valueString, err := json.Marshal(h)
	return string(valueString), err
}
func (h *History) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return err
	}
	return nil
}

type AuditEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
}

// AuditTrail records every state-changing operation, one level below
// History: scans, cancellations and pass issuance all land here.
type AuditTrail []AuditEntry

func (a AuditTrail) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *AuditTrail) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

// WalletPasses maps a pass provider (apple|google) to its issued URL.
// Entries are only ever added.
type WalletPasses map[string]string

func (w WalletPasses) Value() (driver.Value, error) {
	valueString, err := json.Marshal(w)
	return string(valueString), err
}
func (w *WalletPasses) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	return nil
}

type IssueTicketRequestBody struct {
	UserID          string `json:"userId" binding:"required"`
	EventID         string `json:"eventId" binding:"required"`
	TierName        string `json:"tierName" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required,min=1"`
	TotalPriceCents int64  `json:"totalPriceCents" binding:"min=0"`
	Currency        string `json:"currency" binding:"required,currency"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	ExpiresAt       string `json:"expiresAt,omitempty" time_format:"2006-01-02 15:04:05 -07:00"`
}

type ScanTicketRequestBody struct {
	TicketCode string `json:"ticketCode" binding:"required"`
	ScannedBy  string `json:"scannedBy,omitempty"`
}

type CancelTicketRequestBody struct {
	CancelledBy string `json:"cancelledBy" binding:"required"`
}

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type UserTicketsURIParams struct {
	UserID string `uri:"userId" binding:"required"`
}

type WalletPassURIParams struct {
	ID       string `uri:"id" binding:"required,uuid"`
	Provider string `uri:"provider" binding:"required,oneof=apple google"`
}
