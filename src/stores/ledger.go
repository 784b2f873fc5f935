package stores

import (
	"context"

	"cpass/src/models"

	"gorm.io/gorm"
)

// ScanLedger appends scan attempts. Rows carry fresh ids, so concurrent
// appends never conflict and no locking is needed here.
type ScanLedger struct {
	db *gorm.DB
}

func NewScanLedger(db *gorm.DB) *ScanLedger {
	return &ScanLedger{db: db}
}

func (l *ScanLedger) Record(ctx context.Context, event *models.ScanEvent) error {
	return l.db.WithContext(ctx).Create(event).Error
}

func (l *ScanLedger) ListRecent(ctx context.Context, limit int) ([]models.ScanEvent, error) {
	var events []models.ScanEvent
	if err := l.db.WithContext(ctx).
		Order("scanned_at desc").
		Limit(limit).
		Find(&events).
		Error; err != nil {
		return nil, err
	}
	return events, nil
}
