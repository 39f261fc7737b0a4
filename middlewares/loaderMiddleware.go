package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the lookups a single request makes, so a page of challans
// costs one client query and one item query.
type Loaders struct {
	clientLoader        *dataloader.Loader[int, *models.Client]
	inventoryItemLoader *dataloader.Loader[int, *models.InventoryItem]
}

// batchFunc fetches a set of ids keyed by id, scoped by the caller's business.
type batchFunc[T any] func(ctx context.Context, ids []int) (map[int]*T, error)

func NewLoaders() *Loaders {
	return &Loaders{
		clientLoader:        newLoader[models.Client](models.GetClientsByIds),
		inventoryItemLoader: newLoader[models.InventoryItem](models.GetInventoryItemsByIds),
	}
}

func newLoader[T any](fetch batchFunc[T]) *dataloader.Loader[int, *T] {
	return dataloader.NewBatchedLoader(
		func(ctx context.Context, ids []int) []*dataloader.Result[*T] {
			found, err := fetch(ctx, ids)
			if err != nil {
				return handleError[*T](len(ids), err)
			}
			return generateLoaderResults(found, ids)
		},
		dataloader.WithWait[int, *T](time.Millisecond),
	)
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), loadersKey, NewLoaders())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders, or fresh ones outside a request.
func For(ctx context.Context) *Loaders {
	if l, ok := ctx.Value(loadersKey).(*Loaders); ok {
		return l
	}
	return NewLoaders()
}

func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults orders found by ids; a missing id is ErrorRecordNotFound.
func generateLoaderResults[T any](found map[int]*T, ids []int) []*dataloader.Result[*T] {
	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data, ok := found[id]
		if !ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{Error: utils.ErrorRecordNotFound})
			continue
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: data})
	}
	return loaderResults
}
