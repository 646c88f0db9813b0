package attachments

import (
	"context"

	"github.com/skillchain/credvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, att *models.Attachment) error
	GetByCredential(ctx context.Context, credentialID string) (*models.Attachment, error)
	MarkUploaded(ctx context.Context, id string) error
	DeleteByCredential(ctx context.Context, credentialID string) error
}
