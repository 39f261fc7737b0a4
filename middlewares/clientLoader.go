package middlewares

import (
	"context"

	"github.com/rentiq/rentiq_backend/models"
)

func GetClient(ctx context.Context, id int) (*models.Client, error) {
	loaders := For(ctx)
	return loaders.clientLoader.Load(ctx, id)()
}

func GetClients(ctx context.Context, ids []int) ([]*models.Client, []error) {
	loaders := For(ctx)
	return loaders.clientLoader.LoadMany(ctx, ids)()
}
