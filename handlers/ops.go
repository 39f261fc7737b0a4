package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/workflow"
	"github.com/sirupsen/logrus"
)

func listHistories(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	histories, err := models.ListHistories(c.Request.Context(), c.Param("type"), id)
	if err != nil {
		respondError(c, "History", "listHistories", err)
		return
	}
	respondData(c, histories)
}

func outboxSummary(c *gin.Context) {
	summary, err := models.SummarizeOutbox(c.Request.Context())
	if err != nil {
		respondError(c, "Outbox", "outboxSummary", err)
		return
	}
	respondData(c, summary)
}

func requeueDeadEvents(c *gin.Context) {
	n, err := models.RequeueDeadEvents(c.Request.Context())
	if err != nil {
		respondError(c, "Outbox", "requeueDeadEvents", err)
		return
	}
	respondData(c, gin.H{"requeued": n})
}

// PushEnvelope is the body Pub/Sub push subscriptions POST.
type PushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPush consumes a pushed domain event. Malformed or poisoned messages
// are acked with 204; a handler failure answers 500 so Pub/Sub retries.
func PubSubPush(c *gin.Context) {
	logger := config.GetLogger()
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		config.LogError(logger, "PubSub", "PubSubPush", "read body", nil, err)
		c.Status(http.StatusNoContent)
		return
	}
	var envelope PushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		config.LogError(logger, "PubSub", "PubSubPush", "unmarshal envelope", string(body), err)
		c.Status(http.StatusNoContent)
		return
	}
	var peek config.PubSubMessage
	_ = json.Unmarshal(envelope.Message.Data, &peek)

	release := lockBusiness(c.Request.Context(), logger, peek.BusinessId)
	defer release()

	err = workflow.HandleDelivery(c.Request.Context(), logger, envelope.Message.Data, envelope.Message.ID)
	if errors.Is(err, workflow.ErrMissingBusiness) {
		config.LogError(logger, "PubSub", "PubSubPush", "missing business", envelope.Message.ID, err)
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"module":      "PubSub",
			"business_id": peek.BusinessId,
			"event_type":  peek.EventType,
			"message_id":  envelope.Message.ID,
		}).Error("pubsub processing failed: " + err.Error())
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// lockBusiness serializes pushes per business when redis is available and
// proceeds unlocked otherwise; handlers are idempotent.
func lockBusiness(ctx context.Context, logger *logrus.Logger, businessId string) func() {
	if businessId == "" {
		return func() {}
	}
	lock, err := config.ObtainLock(ctx, fmt.Sprintf("PubSub:%s", businessId), 30*time.Second)
	if err != nil {
		if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(logger, "PubSub", "lockBusiness", "obtain lock", businessId, err)
		}
		return func() {}
	}
	if lock == nil {
		return func() {}
	}
	return func() { _ = lock.Release(context.Background()) }
}
