package repomanager

import (
	"context"
	"database/sql"

	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/server/repositories/attachments"
	"github.com/skillchain/credvault/internal/server/repositories/auditlog"
	"github.com/skillchain/credvault/internal/server/repositories/credentials"
	"github.com/skillchain/credvault/internal/server/repositories/grants"
	"github.com/skillchain/credvault/internal/server/repositories/userkeys"
)

// RepositoryManager vends repository implementations bound to a DBTX, so the
// same repository code runs against *sql.DB and, inside dbx.WithTx, against
// *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Credentials(db dbx.DBTX) credentials.Repository
	Grants(db dbx.DBTX) grants.Repository
	AuditLog(db dbx.DBTX) auditlog.Repository
	UserKeys(db dbx.DBTX) userkeys.Repository
	Attachments(db dbx.DBTX) attachments.Repository
}
