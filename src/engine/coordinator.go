package engine

import (
	"context"
	"fmt"
	"log"

	"cpass/src/models"
	"cpass/src/types"

	"github.com/google/uuid"
)

// Locker hands out exclusive, code-scoped critical sections. Acquire blocks
// for at most a bounded wait and returns a release func that must run on
// every path.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Coordinator serializes all mutations of one ticket behind its code lock.
// Two concurrent check-ins of the same code are fully ordered; different
// codes never contend.
type Coordinator struct {
	engine *Engine
	locker Locker
}

func NewCoordinator(engine *Engine, locker Locker) *Coordinator {
	return &Coordinator{engine: engine, locker: locker}
}

// CheckIn takes the code lock before the scan core's lookup-and-branch, so
// at most one caller can ever observe the confirmed status and win.
func (c *Coordinator) CheckIn(ctx context.Context, ticketCode, scannedBy string) (*models.Ticket, types.ScanOutcome, error) {
	release, err := c.locker.Acquire(ctx, ticketCode)
	if err != nil {
		log.Printf("Could not acquire lock for code %s: %s\n", ticketCode, err.Error())
		return nil, "", fmt.Errorf("%w: %s", ErrBusy, err.Error())
	}
	defer release()
	return c.engine.Scan(ctx, ticketCode, scannedBy)
}

// Cancel routes through the same code lock as CheckIn, so a cancel and a
// scan of one ticket can never interleave. The gateway call inside runs
// with its own bounded timeout, which also bounds the lock hold.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID, cancelledBy string) (*models.Ticket, error) {
	ticket, err := c.engine.store.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	release, err := c.locker.Acquire(ctx, ticket.TicketCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBusy, err.Error())
	}
	defer release()
	return c.engine.Cancel(ctx, id, cancelledBy)
}

// Expire is the system-triggered path used by the expiry sweep.
func (c *Coordinator) Expire(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	ticket, err := c.engine.store.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	release, err := c.locker.Acquire(ctx, ticket.TicketCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBusy, err.Error())
	}
	defer release()
	return c.engine.Expire(ctx, id)
}

// IssueWalletPass holds the code lock across the pass cache
// read-and-write, so the full-row write can never overwrite a scan
// committed while the pass issuer was in flight.
func (c *Coordinator) IssueWalletPass(ctx context.Context, id uuid.UUID, provider string) (string, error) {
	ticket, err := c.engine.store.Get(ctx, id)
	if err != nil {
		return "", mapNotFound(err)
	}
	release, err := c.locker.Acquire(ctx, ticket.TicketCode)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBusy, err.Error())
	}
	defer release()
	return c.engine.IssueWalletPass(ctx, id, provider)
}

// ReconcileRefund serializes webhook refund application with gate scans
// of the same ticket.
func (c *Coordinator) ReconcileRefund(ctx context.Context, id uuid.UUID, reference string, amountCents int64) error {
	ticket, err := c.engine.store.Get(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	release, err := c.locker.Acquire(ctx, ticket.TicketCode)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBusy, err.Error())
	}
	defer release()
	return c.engine.ReconcileRefund(ctx, id, reference, amountCents)
}

// ReconcilePayment serializes the charge reference backfill the same way.
func (c *Coordinator) ReconcilePayment(ctx context.Context, id uuid.UUID, paymentIntentID string) error {
	ticket, err := c.engine.store.Get(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	release, err := c.locker.Acquire(ctx, ticket.TicketCode)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBusy, err.Error())
	}
	defer release()
	return c.engine.ReconcilePayment(ctx, id, paymentIntentID)
}

// Sweep runs one expiry pass under per-code locks.
func (c *Coordinator) Sweep(ctx context.Context) {
	c.engine.SweepExpired(ctx, func(code string) (func(), error) {
		return c.locker.Acquire(ctx, code)
	})
}
