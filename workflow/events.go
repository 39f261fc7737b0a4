package workflow

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/models/reports"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/sirupsen/logrus"
)

// EventHandler reacts to one delivered domain event. Handlers must be safe to
// run more than once for the same event.
type EventHandler struct {
	Name   string
	Events []string
	Handle func(ctx context.Context, msg config.PubSubMessage) error
}

func (h EventHandler) accepts(eventType string) bool {
	if len(h.Events) == 0 {
		return true
	}
	for _, e := range h.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Handlers run for every delivered event, in order.
var Handlers = []EventHandler{
	{
		Name: "report-cache",
		Handle: func(ctx context.Context, msg config.PubSubMessage) error {
			return reports.InvalidateReports(ctx, msg.BusinessId)
		},
	},
	{
		Name:   "low-stock-alert",
		Events: []string{models.EventChallanCreated, models.EventChallanUpdated, models.EventStockAdjusted},
		Handle: warnLowStock,
	},
}

// stockItemIds lists the inventory items an event touched.
func stockItemIds(msg config.PubSubMessage) []int {
	if msg.ReferenceType == models.ReferenceTypeItem {
		return []int{msg.ReferenceId}
	}
	var challan struct {
		Lines []struct {
			ItemId int `json:"item_id"`
		} `json:"lines"`
	}
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &challan) != nil {
		return nil
	}
	ids := make([]int, 0, len(challan.Lines))
	for _, d := range challan.Lines {
		ids = append(ids, d.ItemId)
	}
	return ids
}

func warnLowStock(ctx context.Context, msg config.PubSubMessage) error {
	ids := stockItemIds(msg)
	if len(ids) == 0 {
		return nil
	}
	business, err := models.GetBusinessById(ctx, msg.BusinessId)
	if err != nil {
		return err
	}
	items, err := models.GetInventoryItemsByIds(ctx, ids)
	if err != nil {
		return err
	}
	logger := config.GetLogger()
	for _, item := range items {
		if !item.IsLowStock(business.LowStockThreshold) {
			continue
		}
		logger.WithFields(logrus.Fields{
			"module":      "Workflow",
			"business_id": msg.BusinessId,
			"item_code":   item.Code,
			"available":   item.Available(),
		}).Warn("inventory item is low on stock")
	}
	return nil
}

// ErrMissingBusiness is returned for events that carry no business id.
var ErrMissingBusiness = errors.New("event has no business id")

// systemContext is the context handlers run in: the event's business, acting
// as the system user.
func systemContext(ctx context.Context, msg config.PubSubMessage) context.Context {
	ctx = utils.SetBusinessIdInContext(ctx, msg.BusinessId)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")
	if msg.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
	}
	return ctx
}

// ProcessEvent runs every handler that has not yet seen messageId.
func ProcessEvent(ctx context.Context, logger *logrus.Logger, msg config.PubSubMessage, messageId string) error {
	if msg.BusinessId == "" {
		return ErrMissingBusiness
	}
	ctx = systemContext(ctx, msg)
	for _, h := range Handlers {
		if !h.accepts(msg.EventType) {
			continue
		}
		first, err := markProcessed(ctx, msg.BusinessId, h.Name, messageId)
		if err != nil {
			return err
		}
		if !first {
			continue
		}
		if err := h.Handle(ctx, msg); err != nil {
			config.LogError(logger, "Workflow", "ProcessEvent", h.Name, msg, err)
			return err
		}
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":         "Workflow",
			"business_id":    msg.BusinessId,
			"event_type":     msg.EventType,
			"reference_type": msg.ReferenceType,
			"reference_id":   msg.ReferenceId,
			"message_id":     messageId,
		}).Info("event processed")
	}
	return nil
}

// markProcessed falls back to at-least-once handling while the database is
// unreachable, since every handler only drops caches.
var markProcessed = func(ctx context.Context, businessId, handler, messageId string) (bool, error) {
	if config.GetDB() == nil {
		return true, nil
	}
	first, err := models.MarkEventProcessed(ctx, businessId, handler, messageId)
	if errors.Is(err, utils.ErrorServiceNotReady) {
		return true, nil
	}
	return first, err
}
