package credentials

import (
	"context"

	"github.com/skillchain/credvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Credential, error)
	MarkDeleted(ctx context.Context, id, userID string) error
}
