package middlewares

import (
	"context"

	"github.com/rentiq/rentiq_backend/models"
)

func GetInventoryItem(ctx context.Context, id int) (*models.InventoryItem, error) {
	loaders := For(ctx)
	return loaders.inventoryItemLoader.Load(ctx, id)()
}

func GetInventoryItems(ctx context.Context, ids []int) ([]*models.InventoryItem, []error) {
	loaders := For(ctx)
	return loaders.inventoryItemLoader.LoadMany(ctx, ids)()
}
