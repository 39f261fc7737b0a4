package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses.
const (
	OutboxStatusPending    = "PENDING"
	OutboxStatusProcessing = "PROCESSING"
	OutboxStatusSent       = "SENT"
	OutboxStatusFailed     = "FAILED"
	OutboxStatusDead       = "DEAD"
)

// OutboxEvent is a domain event written in the same transaction as the change
// it describes. The dispatcher publishes it after commit.
type OutboxEvent struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId       string     `gorm:"size:64;not null;index" json:"business_id"`
	EventType        string     `gorm:"size:50;not null" json:"event_type"`
	ReferenceType    string     `gorm:"size:50" json:"reference_type"`
	ReferenceId      int        `json:"reference_id"`
	Payload          []byte     `gorm:"type:blob" json:"payload"`
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e OutboxEvent) ToPubSubMessage() config.PubSubMessage {
	return config.PubSubMessage{
		ID:            e.ID,
		BusinessId:    e.BusinessId,
		EventType:     e.EventType,
		ReferenceType: e.ReferenceType,
		ReferenceId:   e.ReferenceId,
		Payload:       json.RawMessage(e.Payload),
		OccurredAt:    e.CreatedAt,
		CorrelationId: e.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// recordEvent appends a PENDING event to the outbox inside tx.
func recordEvent(tx *gorm.DB, eventType string, referenceType string, referenceId int, payload interface{}) error {
	ctx := tx.Statement.Context
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return err
	}
	var data []byte
	if payload != nil {
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	return tx.Create(&OutboxEvent{
		BusinessId:    businessId,
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Payload:       data,
		PublishStatus: OutboxStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}).Error
}

// ProcessedEvent remembers which Pub/Sub deliveries a handler has applied.
type ProcessedEvent struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;uniqueIndex:uq_processed_event,priority:1" json:"business_id"`
	Handler    string    `gorm:"size:100;not null;uniqueIndex:uq_processed_event,priority:2" json:"handler"`
	MessageId  string    `gorm:"size:255;not null;uniqueIndex:uq_processed_event,priority:3" json:"message_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MarkEventProcessed returns false when the handler already saw messageId.
func MarkEventProcessed(ctx context.Context, businessId, handler, messageId string) (bool, error) {
	db, err := dbFor(ctx)
	if err != nil {
		return false, err
	}
	err = db.Create(&ProcessedEvent{BusinessId: businessId, Handler: handler, MessageId: messageId}).Error
	if err == nil {
		return true, nil
	}
	if isDuplicateKeyErr(err) {
		return false, nil
	}
	return false, err
}

type OutboxSummary struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// SummarizeOutbox counts the business's events per publish status.
func SummarizeOutbox(ctx context.Context) ([]*OutboxSummary, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var results []*OutboxSummary
	err = db.Model(&OutboxEvent{}).Select("publish_status AS status, COUNT(*) AS count").
		Where("business_id = ?", businessId).Group("publish_status").Order("publish_status").
		Scan(&results).Error
	return results, err
}

// RequeueDeadEvents moves the business's DEAD events back to PENDING with a
// fresh attempt budget and returns how many were requeued.
func RequeueDeadEvents(ctx context.Context) (int64, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return 0, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Model(&OutboxEvent{}).
		Where("business_id = ? AND publish_status = ?", businessId, OutboxStatusDead).
		Updates(map[string]interface{}{
			"publish_status":     OutboxStatusPending,
			"publish_attempts":   0,
			"last_publish_error": nil,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
		})
	return res.RowsAffected, res.Error
}
