package grants

import (
	"context"

	"github.com/skillchain/credvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, grant *models.AccessGrant) error
	GetByID(ctx context.Context, id string) (*models.AccessGrant, error)
	GetByToken(ctx context.Context, token string) (*models.AccessGrant, error)
	ListByCredential(ctx context.Context, credentialID string) ([]*models.AccessGrant, error)
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeAllForCredential(ctx context.Context, credentialID string) (int64, error)
}
