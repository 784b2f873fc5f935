package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cpass/src/config"
	"cpass/src/models"
	"cpass/src/types"
	"cpass/src/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketStore is the durable keyed storage for tickets and their
// transactions. Implementations must make Put atomic per ticket row; the
// engine provides the per-ticket ordering on top via the coordinator.
type TicketStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	Create(ctx context.Context, ticket *models.Ticket) error
	Put(ctx context.Context, ticket *models.Ticket) error
	ListByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	CountConfirmedByUser(ctx context.Context, userID string) (int64, error)
	ListExpiredConfirmed(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error)
	RecordTransaction(ctx context.Context, txn *models.Transaction) error
	HasRefundTransaction(ctx context.Context, ticketID uuid.UUID) (bool, error)
}

// ScanLedger records every scan attempt, accepted or not.
type ScanLedger interface {
	Record(ctx context.Context, event *models.ScanEvent) error
	ListRecent(ctx context.Context, limit int) ([]models.ScanEvent, error)
}

// PaymentGateway is the external refund collaborator.
type PaymentGateway interface {
	Refund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (string, error)
}

// PassIssuer is the external wallet pass collaborator.
type PassIssuer interface {
	IssuePass(ctx context.Context, provider, ticketID, ticketCode, eventID string) (string, error)
}

// ScanFeed mirrors ledger appends to the fraud analysis stream. Best
// effort; failures are logged, never surfaced to the gate.
type ScanFeed interface {
	Publish(ctx context.Context, event *models.ScanEvent) error
}

// Engine owns the ticket state machine. Nothing else in the service writes
// status, scanCount, history or the audit trail.
type Engine struct {
	store   TicketStore
	ledger  ScanLedger
	gateway PaymentGateway
	passes  PassIssuer
	feed    ScanFeed
}

func New(store TicketStore, ledger ScanLedger, gateway PaymentGateway, passes PassIssuer, feed ScanFeed) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		gateway: gateway,
		passes:  passes,
		feed:    feed,
	}
}

type IssueRequest struct {
	UserID          string
	EventID         string
	TierName        string
	Quantity        int
	TotalPriceCents int64
	Currency        string
	PaymentIntentID string
	ExpiresAt       *time.Time
}

const codeRetryLimit = 5

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Issue creates a confirmed ticket for an already-captured charge. The
// ticket is durably persisted before Issue returns.
func (e *Engine) Issue(ctx context.Context, req *IssueRequest) (*models.Ticket, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidRequest)
	}
	if req.TotalPriceCents < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidRequest)
	}
	if req.UserID == "" || req.EventID == "" {
		return nil, fmt.Errorf("%w: userId and eventId are required", ErrInvalidRequest)
	}
	if req.TotalPriceCents > 0 && req.PaymentIntentID == "" {
		return nil, ErrChargeReferenceMissing
	}

	now := time.Now()
	ticket := &models.Ticket{
		ID:              uuid.New(),
		UserID:          req.UserID,
		EventID:         req.EventID,
		TierName:        req.TierName,
		Quantity:        req.Quantity,
		TotalPriceCents: req.TotalPriceCents,
		Currency:        req.Currency,
		Status:          types.TICKET_CONFIRMED,
		PaymentStatus:   types.PAYMENT_PAID,
		Priority:        utils.ClassifyPriority(req.TotalPriceCents, req.Quantity),
		ExpiresAt:       req.ExpiresAt,
		WalletPasses:    types.WalletPasses{},
		History: types.History{
			{At: now, Status: types.TICKET_CONFIRMED, Note: "Ticket created"},
		},
		AuditTrail: types.AuditTrail{
			{At: now, Actor: "system", Action: types.AUDIT_TICKET_CREATED},
		},
	}
	if req.PaymentIntentID != "" {
		ticket.StripePaymentIntentId = &req.PaymentIntentID
	}

	for attempt := 0; ; attempt++ {
		code, err := utils.GenerateTicketCode()
		if err != nil {
			return nil, err
		}
		ticket.TicketCode = code
		err = e.store.Create(ctx, ticket)
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < codeRetryLimit {
			log.Printf("Ticket code collision on %s, regenerating\n", code)
			continue
		}
		return nil, err
	}

	if req.TotalPriceCents > 0 {
		txn := &models.Transaction{
			ID:          uuid.New(),
			TicketID:    ticket.ID,
			UserID:      req.UserID,
			Kind:        types.TXN_CHARGE,
			AmountCents: req.TotalPriceCents,
			Currency:    req.Currency,
			Reference:   req.PaymentIntentID,
		}
		if err := e.store.RecordTransaction(ctx, txn); err != nil {
			// The charge already settled at the gateway; the row is
			// bookkeeping and the webhook reconcile will repair it.
			log.Printf("Error recording charge transaction for ticket %s: %s\n", ticket.ID, err.Error())
		}
	}

	return ticket, nil
}

// Scan is the single-threaded scan core. Callers must hold the per-code
// lock (see Coordinator.CheckIn); the lock is what makes the confirmed
// check-then-transition safe under concurrent gates.
func (e *Engine) Scan(ctx context.Context, ticketCode, scannedBy string) (*models.Ticket, types.ScanOutcome, error) {
	ticket, err := e.store.GetByCode(ctx, ticketCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.recordScan(ctx, models.TicketIDUnknown, ticketCode, scannedBy, types.SCAN_REJECTED)
			return nil, types.SCAN_REJECTED, ErrNotFound
		}
		return nil, "", err
	}

	if ticket.Status.Terminal() {
		outcome := types.SCAN_REJECTED
		if ticket.Status == types.TICKET_USED {
			// An already-used code is reported distinctly so staff can
			// tell a double scan from a counterfeit.
			outcome = types.SCAN_DUPLICATE
		}
		e.recordScan(ctx, ticket.ID.String(), ticketCode, scannedBy, outcome)
		return ticket, outcome, &InvalidStateError{Op: "scan", Status: ticket.Status}
	}

	now := time.Now()
	ticket.Status = types.TICKET_USED
	ticket.ScanCount++
	ticket.LastScannedAt = &now
	ticket.History = append(ticket.History, types.HistoryEntry{
		At:     now,
		Status: types.TICKET_USED,
		Note:   fmt.Sprintf("Scanned by %s", scannedBy),
	})
	ticket.AuditTrail = append(ticket.AuditTrail, types.AuditEntry{
		At:     now,
		Actor:  scannedBy,
		Action: types.AUDIT_TICKET_SCANNED,
	})
	if err := e.store.Put(ctx, ticket); err != nil {
		return nil, "", err
	}
	e.recordScan(ctx, ticket.ID.String(), ticketCode, scannedBy, types.SCAN_ACCEPTED)
	return ticket, types.SCAN_ACCEPTED, nil
}

func (e *Engine) recordScan(ctx context.Context, ticketID, ticketCode, scannedBy string, outcome types.ScanOutcome) {
	event := &models.ScanEvent{
		ID:         uuid.New(),
		TicketID:   ticketID,
		TicketCode: ticketCode,
		ScannedAt:  time.Now(),
		ScannedBy:  scannedBy,
		Outcome:    outcome,
	}
	if err := e.ledger.Record(ctx, event); err != nil {
		log.Printf("Error recording scan event for code %s: %s\n", ticketCode, err.Error())
	}
	if e.feed != nil {
		go func(ev models.ScanEvent) {
			if err := e.feed.Publish(context.Background(), &ev); err != nil {
				log.Printf("Error publishing scan event %s: %s\n", ev.ID, err.Error())
			}
		}(*event)
	}
}

// Cancel finalizes cancellation only after the refund is confirmed. A
// gateway failure or timeout leaves the ticket confirmed and paid, so the
// caller can retry; the refund idempotency key is ticket-scoped, so a
// retry can never double-refund.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, cancelledBy string) (*models.Ticket, error) {
	ticket, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch ticket.Status {
	case types.TICKET_CANCELLED:
		// Idempotent: client retries land here.
		return ticket, nil
	case types.TICKET_USED, types.TICKET_EXPIRED:
		return nil, &InvalidStateError{Op: "cancel", Status: ticket.Status}
	}

	if ticket.PaymentStatus == types.PAYMENT_PAID && ticket.TotalPriceCents > 0 {
		if ticket.StripePaymentIntentId == nil {
			return nil, ErrChargeReferenceMissing
		}
		rctx, cancel := context.WithTimeout(ctx, config.RefundTimeout())
		defer cancel()
		refundID, err := e.gateway.Refund(rctx, *ticket.StripePaymentIntentId, ticket.TotalPriceCents, fmt.Sprintf("refund-%s", ticket.ID))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrRefundFailed, err.Error())
		}
		ticket.PaymentStatus = types.PAYMENT_REFUNDED
		txn := &models.Transaction{
			ID:          uuid.New(),
			TicketID:    ticket.ID,
			UserID:      ticket.UserID,
			Kind:        types.TXN_REFUND,
			AmountCents: ticket.TotalPriceCents,
			Currency:    ticket.Currency,
			Reference:   refundID,
		}
		if err := e.store.RecordTransaction(ctx, txn); err != nil {
			log.Printf("Error recording refund transaction for ticket %s: %s\n", ticket.ID, err.Error())
		}
	}

	now := time.Now()
	ticket.Status = types.TICKET_CANCELLED
	ticket.History = append(ticket.History, types.HistoryEntry{
		At:     now,
		Status: types.TICKET_CANCELLED,
		Note:   fmt.Sprintf("Cancelled by %s", cancelledBy),
	})
	ticket.AuditTrail = append(ticket.AuditTrail, types.AuditEntry{
		At:     now,
		Actor:  cancelledBy,
		Action: types.AUDIT_TICKET_CANCELLED,
	})
	if err := e.store.Put(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Expire moves a confirmed ticket to expired. No refund is issued here: a
// no-show is not a cancellation. Re-expiring an expired ticket is a no-op.
func (e *Engine) Expire(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	ticket, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch ticket.Status {
	case types.TICKET_EXPIRED:
		return ticket, nil
	case types.TICKET_USED, types.TICKET_CANCELLED:
		return nil, &InvalidStateError{Op: "expire", Status: ticket.Status}
	}

	now := time.Now()
	ticket.Status = types.TICKET_EXPIRED
	ticket.History = append(ticket.History, types.HistoryEntry{
		At:     now,
		Status: types.TICKET_EXPIRED,
		Note:   "Ticket expired",
	})
	ticket.AuditTrail = append(ticket.AuditTrail, types.AuditEntry{
		At:     now,
		Actor:  "system",
		Action: types.AUDIT_TICKET_EXPIRED,
	})
	if err := e.store.Put(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// IssueWalletPass returns the pass URL for the provider. Policy: once a
// URL exists for a provider it is cached and returned as-is; a fresh
// request only goes out for a provider with no recorded URL. URLs for
// other providers are never discarded. Callers must hold the per-code
// lock (see Coordinator.IssueWalletPass); the write at the end covers
// the whole row.
func (e *Engine) IssueWalletPass(ctx context.Context, id uuid.UUID, provider string) (string, error) {
	ticket, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	if url, ok := ticket.WalletPasses[provider]; ok {
		return url, nil
	}

	url, err := e.passes.IssuePass(ctx, provider, ticket.ID.String(), ticket.TicketCode, ticket.EventID)
	if err != nil {
		return "", err
	}
	if ticket.WalletPasses == nil {
		ticket.WalletPasses = types.WalletPasses{}
	}
	ticket.WalletPasses[provider] = url
	ticket.AuditTrail = append(ticket.AuditTrail, types.AuditEntry{
		At:     time.Now(),
		Actor:  "system",
		Action: types.AUDIT_PASS_ISSUED,
		Note:   provider,
	})
	if err := e.store.Put(ctx, ticket); err != nil {
		return "", err
	}
	return url, nil
}

// ReconcileRefund applies a gateway refund confirmation delivered via
// webhook. Idempotent: a refund that was already applied, or already has
// its transaction row, changes nothing. Callers must hold the per-code
// lock (see Coordinator.ReconcileRefund).
func (e *Engine) ReconcileRefund(ctx context.Context, id uuid.UUID, reference string, amountCents int64) error {
	ticket, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	recorded, err := e.store.HasRefundTransaction(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if ticket.PaymentStatus == types.PAYMENT_REFUNDED && recorded {
		return nil
	}

	if !recorded {
		txn := &models.Transaction{
			ID:          uuid.New(),
			TicketID:    ticket.ID,
			UserID:      ticket.UserID,
			Kind:        types.TXN_REFUND,
			AmountCents: amountCents,
			Currency:    ticket.Currency,
			Reference:   reference,
		}
		if err := e.store.RecordTransaction(ctx, txn); err != nil {
			return err
		}
	}
	if ticket.PaymentStatus != types.PAYMENT_REFUNDED {
		ticket.PaymentStatus = types.PAYMENT_REFUNDED
		ticket.AuditTrail = append(ticket.AuditTrail, types.AuditEntry{
			At:     time.Now(),
			Actor:  "stripe",
			Action: types.AUDIT_REFUND_RECONCILED,
			Note:   reference,
		})
		if err := e.store.Put(ctx, ticket); err != nil {
			return err
		}
	}
	return nil
}

// ReconcilePayment backfills the gateway reference from a
// payment_intent.succeeded webhook if issuance recorded none. Callers
// must hold the per-code lock (see Coordinator.ReconcilePayment).
func (e *Engine) ReconcilePayment(ctx context.Context, id uuid.UUID, paymentIntentID string) error {
	ticket, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if ticket.StripePaymentIntentId != nil && *ticket.StripePaymentIntentId == paymentIntentID {
		return nil
	}
	ticket.StripePaymentIntentId = &paymentIntentID
	if ticket.PaymentStatus == types.PAYMENT_FAILED {
		ticket.PaymentStatus = types.PAYMENT_PAID
	}
	return e.store.Put(ctx, ticket)
}

// SweepExpired expires confirmed tickets whose deadline has passed. Runs
// from the scheduler; refund-on-expiry stays a policy flag, not an action.
func (e *Engine) SweepExpired(ctx context.Context, lockFor func(code string) (func(), error)) {
	tickets, err := e.store.ListExpiredConfirmed(ctx, time.Now(), 100)
	if err != nil {
		log.Printf("Error listing expired tickets: %s\n", err.Error())
		return
	}
	for _, ticket := range tickets {
		release, err := lockFor(ticket.TicketCode)
		if err != nil {
			log.Printf("Skipping expiry of %s, code busy: %s\n", ticket.ID, err.Error())
			continue
		}
		if _, err := e.Expire(ctx, ticket.ID); err != nil {
			log.Printf("Error expiring ticket %s: %s\n", ticket.ID, err.Error())
		}
		if config.RefundOnExpiry() {
			log.Printf("REFUND_ON_EXPIRY set; ticket %s left for the administrative refund flow\n", ticket.ID)
		}
		release()
	}
}
