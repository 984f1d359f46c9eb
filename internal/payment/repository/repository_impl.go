package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, provider, provider_event_id, event_type, order_id, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		record.ID,
		record.Provider,
		record.ProviderEventID,
		record.EventType,
		record.OrderID,
		record.Payload,
		record.ReceivedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var record domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, order_id, payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?`,
		provider,
		providerEventID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) InsertIntent(ctx context.Context, db *gorm.DB, record *domain.IntentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents (id, order_id, provider, provider_intent_id, approval_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_intent_id) DO NOTHING`,
		record.ID,
		record.OrderID,
		record.Provider,
		record.ProviderIntentID,
		record.ApprovalURL,
		record.CreatedAt,
	).Error
}

func (r *repo) FindIntent(ctx context.Context, db *gorm.DB, provider, providerIntentID string) (*domain.IntentRecord, error) {
	var record domain.IntentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, provider, provider_intent_id, approval_url, created_at
		 FROM payment_intents
		 WHERE provider = ? AND provider_intent_id = ?`,
		provider,
		providerIntentID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindLatestIntentByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, provider string) (*domain.IntentRecord, error) {
	var record domain.IntentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, provider, provider_intent_id, approval_url, created_at
		 FROM payment_intents
		 WHERE order_id = ? AND provider = ?
		 ORDER BY id DESC
		 LIMIT 1`,
		orderID,
		provider,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}
