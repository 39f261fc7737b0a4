package workflow

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPublishBackoff = 10 * time.Minute

// Publisher delivers one event and returns its message id.
type Publisher func(ctx context.Context, msg config.PubSubMessage) (string, error)

type OutboxDispatcher struct {
	DB           func() *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      Publisher

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// NewOutboxDispatcher publishes to Pub/Sub when it is configured and applies
// events in process otherwise. OUTBOX_MAX_ATTEMPTS and
// OUTBOX_INITIAL_BACKOFF_SECONDS override the retry policy.
func NewOutboxDispatcher(db func() *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	d := &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishDomainEvent,
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
	if !config.PubSubEnabled() {
		d.Publish = DirectPublisher(logger)
	}
	if n, err := strconv.Atoi(os.Getenv("OUTBOX_MAX_ATTEMPTS")); err == nil && n > 0 {
		d.MaxAttempts = n
	}
	if n, err := strconv.Atoi(os.Getenv("OUTBOX_INITIAL_BACKOFF_SECONDS")); err == nil && n > 0 {
		d.InitialBackoff = time.Duration(n) * time.Second
	}
	return d
}

// DirectPublisher applies an event in this process, for environments without Pub/Sub.
func DirectPublisher(logger *logrus.Logger) Publisher {
	return func(ctx context.Context, msg config.PubSubMessage) (string, error) {
		id := "direct-" + strconv.Itoa(msg.ID)
		if err := ProcessEvent(ctx, logger, msg, id); err != nil {
			return "", err
		}
		return id, nil
	}
}

// PublishBackoff is the wait after the attempt-th failure:
// initial * 2^(attempt-1), capped at ten minutes.
func PublishBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > maxPublishBackoff {
			return maxPublishBackoff
		}
	}
	if backoff > maxPublishBackoff {
		return maxPublishBackoff
	}
	return backoff
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *OutboxDispatcher) db(ctx context.Context) *gorm.DB {
	if d.DB == nil {
		return nil
	}
	db := d.DB()
	if db == nil {
		return nil
	}
	return db.WithContext(ctx)
}

func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) {
	db := d.db(ctx)
	if db == nil {
		return
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.OutboxEvent
	err := db.Transaction(func(tx *gorm.DB) error {
		// ready PENDING/FAILED rows, and PROCESSING rows whose dispatcher died
		q := tx.
			Where(`(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
				OR (publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)`,
				[]string{models.OutboxStatusPending, models.OutboxStatusFailed}, now,
				models.OutboxStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				claimed[i].PublishStatus = models.OutboxStatusDead
				reason := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				if err := tx.Model(&models.OutboxEvent{}).Where("id = ?", claimed[i].ID).Updates(deadColumns(reason)).Error; err != nil {
					return err
				}
				continue
			}
			claimed[i].PublishStatus = models.OutboxStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.OutboxEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "OutboxDispatcher", "dispatchOnce", "claim", nil, err)
		return
	}

	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxStatusDead {
			continue
		}
		msgId, pubErr := d.Publish(ctx, rec.ToPubSubMessage())
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		d.markPublishSent(ctx, rec.ID, msgId)
	}
}

// deadColumns parks an event until an admin requeues it.
func deadColumns(reason string) map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     models.OutboxStatusDead,
		"last_publish_error": &reason,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
	}
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordId int, msgId string) {
	now := time.Now().UTC()
	err := d.db(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &msgId,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "OutboxDispatcher", "markPublishSent", "update", recordId, err)
	}
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.OutboxEvent, cause error) {
	msg := cause.Error()
	fields := logrus.Fields{
		"module":      "OutboxDispatcher",
		"business_id": rec.BusinessId,
		"record_id":   rec.ID,
		"event_type":  rec.EventType,
		"attempt":     rec.PublishAttempts,
	}

	if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
		if err := d.db(ctx).Model(&models.OutboxEvent{}).Where("id = ?", rec.ID).Updates(deadColumns(msg)).Error; err != nil {
			config.LogError(d.Logger, "OutboxDispatcher", "markPublishFailed", "mark dead", rec.ID, err)
		}
		d.Logger.WithFields(fields).Error("outbox publish moved to DEAD after max attempts: " + msg)
		return
	}

	next := time.Now().UTC().Add(PublishBackoff(d.InitialBackoff, rec.PublishAttempts))
	err := d.db(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "OutboxDispatcher", "markPublishFailed", "schedule retry", rec.ID, err)
	}
	fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	d.Logger.WithFields(fields).Error("outbox publish failed: " + msg)
}
