package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rentiq/rentiq_backend/gate"
	"google.golang.org/api/option"
)

// PubSubMessage is the wire form of a domain event.
type PubSubMessage struct {
	ID            int             `json:"id"`
	BusinessId    string          `json:"business_id"`
	EventType     string          `json:"event_type"`
	ReferenceType string          `json:"reference_type"`
	ReferenceId   int             `json:"reference_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationId string          `json:"correlation_id,omitempty"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

var ErrPubSubNotConfigured = errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")

// GetClient returns a Pub/Sub client, initializing it through the pubsub gate.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetClient(ctx context.Context) (*pubsub.Client, error) {
	return getPubSubClient(ctx)
}

func PubSubEnabled() bool {
	return getPubSubProjectID() != "" && os.Getenv("PUBSUB_TOPIC") != ""
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run sets this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, ErrPubSubNotConfigured
	}
	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	g := getGate(GatePubSub, 5, 15*time.Second)
	// a gate that gave up earlier gets another chance on the next publish
	if g.State() == gate.StateFailed {
		g.Reset()
	}
	err := g.Run(ctx, func(ctx context.Context) error {
		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err != nil {
			return err
		}
		pubsubClient = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pubsubClient, nil
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// PublishDomainEvent publishes msg to PUBSUB_TOPIC and returns the server-assigned message ID.
func PublishDomainEvent(ctx context.Context, msg PubSubMessage) (string, error) {
	topicName := os.Getenv("PUBSUB_TOPIC")
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"business_id": msg.BusinessId,
			"event_type":  msg.EventType,
		},
	})
	return result.Get(ctx)
}

func CreateSubscriptionIfNotExists(ctx context.Context, c *pubsub.Client, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	if name == "" {
		return nil, errors.New("subscription is required")
	}
	sub := c.Subscription(name)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return sub, nil
	}
	sub, err = c.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", name, err)
	}
	return sub, nil
}
