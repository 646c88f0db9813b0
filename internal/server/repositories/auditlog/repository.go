package auditlog

import (
	"context"
	"time"

	"github.com/skillchain/credvault/internal/server/models"
)

// Filter narrows audit queries. Zero values mean "no constraint". Limit of 0
// falls back to the repository default page size.
type Filter struct {
	Action models.AccessAction
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, entry *models.AccessLogEntry) error
	ListByCredential(ctx context.Context, credentialID string, f Filter) ([]*models.AccessLogEntry, error)
	ListByCredentials(ctx context.Context, credentialIDs []string, f Filter) ([]*models.AccessLogEntry, error)
	StatsByCredential(ctx context.Context, credentialID string) (*models.AccessStats, error)
}
