package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBackoff(t *testing.T) {
	initial := 5 * time.Second
	assert.Equal(t, 5*time.Second, PublishBackoff(initial, 1))
	assert.Equal(t, 10*time.Second, PublishBackoff(initial, 2))
	assert.Equal(t, 20*time.Second, PublishBackoff(initial, 3))
	assert.Equal(t, 320*time.Second, PublishBackoff(initial, 7))
	assert.Equal(t, 10*time.Minute, PublishBackoff(initial, 8))
	assert.Equal(t, 10*time.Minute, PublishBackoff(initial, 50))
}

// withHandlers swaps the handler table and dedup store for one test.
func withHandlers(t *testing.T, hs []EventHandler) map[string]bool {
	t.Helper()
	oldHandlers, oldMark := Handlers, markProcessed
	seen := map[string]bool{}
	var mu sync.Mutex
	Handlers = hs
	markProcessed = func(_ context.Context, businessId, handler, messageId string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		key := businessId + "/" + handler + "/" + messageId
		if seen[key] {
			return false, nil
		}
		seen[key] = true
		return true, nil
	}
	t.Cleanup(func() { Handlers, markProcessed = oldHandlers, oldMark })
	return seen
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestProcessEventRunsMatchingHandlersOnce(t *testing.T) {
	var calls []string
	withHandlers(t, []EventHandler{
		{Name: "all", Handle: func(ctx context.Context, msg config.PubSubMessage) error {
			businessId, _ := utils.GetBusinessIdFromContext(ctx)
			calls = append(calls, "all:"+businessId)
			return nil
		}},
		{Name: "payments", Events: []string{models.EventPaymentReceived}, Handle: func(context.Context, config.PubSubMessage) error {
			calls = append(calls, "payments")
			return nil
		}},
	})

	msg := config.PubSubMessage{ID: 7, BusinessId: "biz-1", EventType: models.EventChallanCreated}
	require.NoError(t, ProcessEvent(context.Background(), quietLogger(), msg, "m-1"))
	require.NoError(t, ProcessEvent(context.Background(), quietLogger(), msg, "m-1"))
	assert.Equal(t, []string{"all:biz-1"}, calls)

	msg.EventType = models.EventPaymentReceived
	require.NoError(t, ProcessEvent(context.Background(), quietLogger(), msg, "m-2"))
	assert.Equal(t, []string{"all:biz-1", "all:biz-1", "payments"}, calls)
}

func TestProcessEventRequiresBusiness(t *testing.T) {
	withHandlers(t, nil)
	err := ProcessEvent(context.Background(), quietLogger(), config.PubSubMessage{EventType: models.EventClientChanged}, "m")
	assert.ErrorIs(t, err, ErrMissingBusiness)
}

func TestProcessEventStopsOnHandlerError(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	withHandlers(t, []EventHandler{
		{Name: "fails", Handle: func(context.Context, config.PubSubMessage) error { return boom }},
		{Name: "after", Handle: func(context.Context, config.PubSubMessage) error { ran = true; return nil }},
	})
	err := ProcessEvent(context.Background(), quietLogger(), config.PubSubMessage{BusinessId: "b", EventType: "x"}, "m")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestDirectPublisherUsesOutboxId(t *testing.T) {
	var gotId string
	withHandlers(t, []EventHandler{
		{Name: "h", Handle: func(context.Context, config.PubSubMessage) error { return nil }},
	})
	oldMark := markProcessed
	markProcessed = func(ctx context.Context, b, h, id string) (bool, error) {
		gotId = id
		return oldMark(ctx, b, h, id)
	}

	id, err := DirectPublisher(quietLogger())(context.Background(), config.PubSubMessage{ID: 42, BusinessId: "b"})
	require.NoError(t, err)
	assert.Equal(t, "direct-42", id)
	assert.Equal(t, "direct-42", gotId)
}

func TestHandleDeliveryAcksGarbage(t *testing.T) {
	withHandlers(t, nil)
	assert.NoError(t, HandleDelivery(context.Background(), quietLogger(), []byte("{not json"), "m"))

	data, err := json.Marshal(config.PubSubMessage{EventType: "x"})
	require.NoError(t, err)
	assert.ErrorIs(t, HandleDelivery(context.Background(), quietLogger(), data, "m"), ErrMissingBusiness)
}

func TestStockItemIds(t *testing.T) {
	assert.Equal(t, []int{9}, stockItemIds(config.PubSubMessage{ReferenceType: models.ReferenceTypeItem, ReferenceId: 9}))

	payload := json.RawMessage(`{"challan_number":"CH-1","lines":[{"item_id":3,"quantity":2},{"item_id":5,"quantity":1}]}`)
	assert.Equal(t, []int{3, 5}, stockItemIds(config.PubSubMessage{ReferenceType: models.ReferenceTypeChallan, Payload: payload}))
	assert.Empty(t, stockItemIds(config.PubSubMessage{ReferenceType: models.ReferenceTypeChallan}))
}

func TestBusinessLocksReuseMutex(t *testing.T) {
	var locks businessLocks
	assert.Same(t, locks.get("a"), locks.get("a"))
	assert.NotSame(t, locks.get("a"), locks.get("b"))
}
