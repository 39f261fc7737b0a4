package workflow

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/sirupsen/logrus"
)

// businessLocks serializes event handling per business.
type businessLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (b *businessLocks) get(businessId string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locks == nil {
		b.locks = make(map[string]*sync.Mutex)
	}
	m, ok := b.locks[businessId]
	if !ok {
		m = &sync.Mutex{}
		b.locks[businessId] = m
	}
	return m
}

// HandleDelivery decodes one Pub/Sub payload and processes it. The returned
// error decides between ack and nack; undecodable payloads are acked so they
// are not redelivered forever.
func HandleDelivery(ctx context.Context, logger *logrus.Logger, data []byte, messageId string) error {
	var msg config.PubSubMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		config.LogError(logger, "Workflow", "HandleDelivery", "unmarshal", string(data), err)
		return nil
	}
	return ProcessEvent(ctx, logger, msg, messageId)
}

// RunSubscriber pulls from PUBSUB_SUBSCRIPTION until ctx is cancelled.
func RunSubscriber(ctx context.Context, logger *logrus.Logger) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	locks := &businessLocks{}
	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var peek struct {
			BusinessId string `json:"business_id"`
		}
		_ = json.Unmarshal(m.Data, &peek)
		lock := locks.get(peek.BusinessId)
		lock.Lock()
		defer lock.Unlock()

		if err := HandleDelivery(ctx, logger, m.Data, m.ID); err != nil {
			logger.WithFields(logrus.Fields{
				"module":      "Workflow",
				"business_id": peek.BusinessId,
				"message_id":  m.ID,
			}).Error("pubsub processing failed: " + err.Error())
			m.Nack()
			return
		}
		m.Ack()
	})
}
