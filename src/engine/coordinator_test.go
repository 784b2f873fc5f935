package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cpass/src/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// chanLocker is an in-process stand-in for the redis code lock.
type chanLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

func newChanLocker(wait time.Duration) *chanLocker {
	return &chanLocker{locks: map[string]chan struct{}{}, wait: wait}
}

func (l *chanLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.locks[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.locks[key] = slot
	}
	return slot
}

func (l *chanLocker) Acquire(ctx context.Context, key string) (func(), error) {
	slot := l.slot(key)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-time.After(l.wait):
		return nil, errors.New("lock wait deadline exceeded")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// gatedPasses parks inside IssuePass until resume is closed, keeping the
// pass write in flight while the test exercises the code lock.
type gatedPasses struct {
	entered chan struct{}
	resume  chan struct{}
}

func (p *gatedPasses) IssuePass(ctx context.Context, provider, ticketID, ticketCode, eventID string) (string, error) {
	p.entered <- struct{}{}
	<-p.resume
	return fmt.Sprintf("https://passes.example/%s/%s", provider, ticketID), nil
}

type failLocker struct{}

func (failLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, errors.New("lock held elsewhere")
}

type CoordinatorTestSuite struct {
	suite.Suite
	store  *memStore
	ledger *memLedger
	engine *Engine
	coord  *Coordinator
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.store = newMemStore()
	s.ledger = &memLedger{}
	s.engine = New(s.store, s.ledger, &fakeGateway{}, &fakePasses{}, nil)
	s.coord = NewCoordinator(s.engine, newChanLocker(2*time.Second))
}

func (s *CoordinatorTestSuite) issue(expiresAt *time.Time) string {
	ticket, err := s.engine.Issue(context.Background(), &IssueRequest{
		UserID:    "user-1",
		EventID:   "event-1",
		TierName:  "general",
		Quantity:  1,
		Currency:  "USD",
		ExpiresAt: expiresAt,
	})
	s.Require().NoError(err)
	return ticket.TicketCode
}

func (s *CoordinatorTestSuite) TestConcurrentCheckInsAdmitOnce() {
	code := s.issue(nil)

	const gates = 16
	var wg sync.WaitGroup
	outcomes := make(chan types.ScanOutcome, gates)
	for i := 0; i < gates; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := s.coord.CheckIn(context.Background(), code, "gate")
			if err == nil {
				outcomes <- outcome
				return
			}
			var stateErr *InvalidStateError
			if errors.As(err, &stateErr) {
				outcomes <- types.SCAN_DUPLICATE
				return
			}
			outcomes <- types.SCAN_REJECTED
		}()
	}
	wg.Wait()
	close(outcomes)

	accepted, duplicates := 0, 0
	for outcome := range outcomes {
		switch outcome {
		case types.SCAN_ACCEPTED:
			accepted++
		case types.SCAN_DUPLICATE:
			duplicates++
		}
	}
	assert.Equal(s.T(), 1, accepted, "exactly one gate wins")
	assert.Equal(s.T(), gates-1, duplicates)

	ticket, err := s.store.GetByCode(context.Background(), code)
	s.Require().NoError(err)
	assert.Equal(s.T(), 1, ticket.ScanCount)
	assert.Equal(s.T(), types.TICKET_USED, ticket.Status)
}

func (s *CoordinatorTestSuite) TestCheckInBusy() {
	code := s.issue(nil)
	coord := NewCoordinator(s.engine, failLocker{})

	_, _, err := coord.CheckIn(context.Background(), code, "gate")
	assert.ErrorIs(s.T(), err, ErrBusy)

	ticket, err := s.store.GetByCode(context.Background(), code)
	s.Require().NoError(err)
	assert.Equal(s.T(), types.TICKET_CONFIRMED, ticket.Status, "a busy gate must not consume the ticket")
}

func (s *CoordinatorTestSuite) TestWalletPassIssuanceCannotRevertScan() {
	passes := &gatedPasses{entered: make(chan struct{}), resume: make(chan struct{})}
	eng := New(s.store, s.ledger, &fakeGateway{}, passes, nil)
	coord := NewCoordinator(eng, newChanLocker(50*time.Millisecond))

	code := s.issue(nil)
	issued, err := s.store.GetByCode(context.Background(), code)
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() {
		_, err := coord.IssueWalletPass(context.Background(), issued.ID, "apple")
		done <- err
	}()
	<-passes.entered

	// The pass write holds the code lock, so a gate cannot scan between
	// its read and its write.
	_, _, err = coord.CheckIn(context.Background(), code, "gate-1")
	assert.ErrorIs(s.T(), err, ErrBusy)

	close(passes.resume)
	s.Require().NoError(<-done)

	_, outcome, err := coord.CheckIn(context.Background(), code, "gate-1")
	s.Require().NoError(err)
	assert.Equal(s.T(), types.SCAN_ACCEPTED, outcome)

	_, outcome, err = coord.CheckIn(context.Background(), code, "gate-2")
	var stateErr *InvalidStateError
	s.Require().ErrorAs(err, &stateErr)
	assert.Equal(s.T(), types.SCAN_DUPLICATE, outcome)

	final, err := s.store.GetByCode(context.Background(), code)
	s.Require().NoError(err)
	assert.Equal(s.T(), types.TICKET_USED, final.Status)
	assert.Equal(s.T(), 1, final.ScanCount)
	assert.NotEmpty(s.T(), final.WalletPasses["apple"])

	events, err := s.ledger.ListRecent(context.Background(), 50)
	s.Require().NoError(err)
	accepted := 0
	for _, event := range events {
		if event.Outcome == types.SCAN_ACCEPTED {
			accepted++
		}
	}
	assert.Equal(s.T(), 1, accepted, "one accepted scan per ticket, ever")
}

func (s *CoordinatorTestSuite) TestWebhookReconcilesHoldCodeLock() {
	code := s.issue(nil)
	ticket, err := s.store.GetByCode(context.Background(), code)
	s.Require().NoError(err)
	coord := NewCoordinator(s.engine, failLocker{})

	err = coord.ReconcileRefund(context.Background(), ticket.ID, "re_hook", 0)
	assert.ErrorIs(s.T(), err, ErrBusy)

	err = coord.ReconcilePayment(context.Background(), ticket.ID, "pi_hook")
	assert.ErrorIs(s.T(), err, ErrBusy)

	_, err = coord.IssueWalletPass(context.Background(), ticket.ID, "apple")
	assert.ErrorIs(s.T(), err, ErrBusy)

	stored, err := s.store.Get(context.Background(), ticket.ID)
	s.Require().NoError(err)
	assert.Equal(s.T(), types.TICKET_CONFIRMED, stored.Status)
	assert.Equal(s.T(), types.PAYMENT_PAID, stored.PaymentStatus)
	assert.Empty(s.T(), stored.WalletPasses)
}

func (s *CoordinatorTestSuite) TestCancelUnknownTicket() {
	_, err := s.coord.Cancel(context.Background(), uuid.New(), "user-1")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *CoordinatorTestSuite) TestSweepExpiresOverdueTickets() {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	overdueCode := s.issue(&past)
	liveCode := s.issue(&future)

	s.coord.Sweep(context.Background())

	overdue, err := s.store.GetByCode(context.Background(), overdueCode)
	s.Require().NoError(err)
	assert.Equal(s.T(), types.TICKET_EXPIRED, overdue.Status)

	live, err := s.store.GetByCode(context.Background(), liveCode)
	s.Require().NoError(err)
	assert.Equal(s.T(), types.TICKET_CONFIRMED, live.Status)
}

func TestCoordinatorRunner(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}
