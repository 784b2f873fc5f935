package stores

import (
	"context"
	"time"

	"cpass/src/models"
	"cpass/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketStore is the single source of truth for ticket rows. Status,
// counters, history and the audit trail only change through Put, and Put is
// only called by the lifecycle engine while it holds the ticket's lock.
type TicketStore struct {
	db *gorm.DB
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{db: db}
}

func (s *TicketStore) Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).
		Where(&models.Ticket{ID: id}).
		First(&ticket).
		Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *TicketStore) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).
		Where(&models.Ticket{TicketCode: code}).
		First(&ticket).
		Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Create inserts a new ticket row. Returns gorm.ErrDuplicatedKey when the
// generated ticket code collides; the engine regenerates and retries.
func (s *TicketStore) Create(ctx context.Context, ticket *models.Ticket) error {
	return s.db.WithContext(ctx).Create(ticket).Error
}

// Put saves the full row after an in-memory mutation.
func (s *TicketStore) Put(ctx context.Context, ticket *models.Ticket) error {
	return s.db.WithContext(ctx).Save(ticket).Error
}

func (s *TicketStore) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	if err := s.db.WithContext(ctx).
		Where(&models.Ticket{UserID: userID}).
		Order("created_at desc").
		Find(&tickets).
		Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *TicketStore) CountConfirmedByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where(&models.Ticket{UserID: userID, Status: types.TICKET_CONFIRMED}).
		Count(&count).
		Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListExpiredConfirmed feeds the expiry sweep: confirmed tickets whose
// deadline has passed.
func (s *TicketStore) ListExpiredConfirmed(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	if err := s.db.WithContext(ctx).
		Where("status = ?", types.TICKET_CONFIRMED).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Order("expires_at asc").
		Limit(limit).
		Find(&tickets).
		Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *TicketStore) RecordTransaction(ctx context.Context, txn *models.Transaction) error {
	return s.db.WithContext(ctx).Create(txn).Error
}

// HasRefundTransaction guards webhook reconciliation against recording a
// second refund for the same ticket.
func (s *TicketStore) HasRefundTransaction(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where(&models.Transaction{TicketID: ticketID, Kind: types.TXN_REFUND}).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
