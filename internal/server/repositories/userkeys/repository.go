package userkeys

import (
	"context"

	"github.com/skillchain/credvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.UserKey) error
	GetByUser(ctx context.Context, userID string) (*models.UserKey, error)
	Delete(ctx context.Context, userID string) error
}
