package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/skillchain/credvault/internal/server/repositories/attachments"
	"github.com/skillchain/credvault/internal/server/repositories/auditlog"
	"github.com/skillchain/credvault/internal/server/repositories/credentials"
	"github.com/skillchain/credvault/internal/server/repositories/grants"
	"github.com/skillchain/credvault/internal/server/repositories/userkeys"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	m := NewPostgresRepositoryManager()
	var _ RepositoryManager = m
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &PostgresRepositoryManager{}

	if c := m.Credentials(db); c == nil {
		t.Fatal("Credentials() nil")
	}
	if g := m.Grants(db); g == nil {
		t.Fatal("Grants() nil")
	}
	if a := m.AuditLog(db); a == nil {
		t.Fatal("AuditLog() nil")
	}
	if k := m.UserKeys(db); k == nil {
		t.Fatal("UserKeys() nil")
	}
	if at := m.Attachments(db); at == nil {
		t.Fatal("Attachments() nil")
	}

	var _ credentials.Repository = m.Credentials(db)
	var _ grants.Repository = m.Grants(db)
	var _ auditlog.Repository = m.AuditLog(db)
	var _ userkeys.Repository = m.UserKeys(db)
	var _ attachments.Repository = m.Attachments(db)
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
