package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/logging"
	"github.com/skillchain/credvault/internal/server/keystore"
	"github.com/skillchain/credvault/internal/server/ledger"
	"github.com/skillchain/credvault/internal/server/models"
	"github.com/skillchain/credvault/internal/server/repositories/attachments"
	"github.com/skillchain/credvault/internal/server/repositories/auditlog"
	"github.com/skillchain/credvault/internal/server/repositories/credentials"
	"github.com/skillchain/credvault/internal/server/repositories/grants"
	"github.com/skillchain/credvault/internal/server/repositories/userkeys"
)

// -------- in-memory repository fakes --------

type fakeCredRepo struct {
	byID map[string]*models.Credential

	createErr error
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{byID: make(map[string]*models.Credential)}
}

func (f *fakeCredRepo) Create(ctx context.Context, cred *models.Credential) error {
	if f.createErr != nil {
		return f.createErr
	}
	cred.CreatedAt = time.Now()
	f.byID[cred.ID] = cred
	return nil
}

func (f *fakeCredRepo) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	cred, ok := f.byID[id]
	if !ok || cred.Deleted {
		return nil, common.ErrorNotFound
	}
	return cred, nil
}

func (f *fakeCredRepo) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Credential, error) {
	cred, err := f.GetByID(ctx, id)
	if err != nil || cred.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return cred, nil
}

func (f *fakeCredRepo) ListByUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	var out []*models.Credential
	for _, c := range f.byID {
		if c.UserID == userID && !c.Deleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCredRepo) MarkDeleted(ctx context.Context, id, userID string) error {
	cred, err := f.GetByIDAndUser(ctx, id, userID)
	if err != nil {
		return err
	}
	cred.Deleted = true
	return nil
}

type fakeGrantRepo struct {
	byID    map[string]*models.AccessGrant
	byToken map[string]*models.AccessGrant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{
		byID:    make(map[string]*models.AccessGrant),
		byToken: make(map[string]*models.AccessGrant),
	}
}

func (f *fakeGrantRepo) Create(ctx context.Context, grant *models.AccessGrant) error {
	if _, ok := f.byToken[grant.Token]; ok {
		return fmt.Errorf("db error: duplicate token")
	}
	grant.IssuedAt = time.Now()
	f.byID[grant.ID] = grant
	f.byToken[grant.Token] = grant
	return nil
}

func (f *fakeGrantRepo) GetByID(ctx context.Context, id string) (*models.AccessGrant, error) {
	g, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return g, nil
}

func (f *fakeGrantRepo) GetByToken(ctx context.Context, token string) (*models.AccessGrant, error) {
	g, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return g, nil
}

func (f *fakeGrantRepo) ListByCredential(ctx context.Context, credentialID string) ([]*models.AccessGrant, error) {
	var out []*models.AccessGrant
	for _, g := range f.byID {
		if g.CredentialID == credentialID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (f *fakeGrantRepo) Revoke(ctx context.Context, id string) (bool, error) {
	g, ok := f.byID[id]
	if !ok {
		return false, common.ErrorNotFound
	}
	if g.Revoked {
		return false, nil
	}
	now := time.Now()
	g.Revoked = true
	g.RevokedAt = &now
	return true, nil
}

func (f *fakeGrantRepo) RevokeAllForCredential(ctx context.Context, credentialID string) (int64, error) {
	var n int64
	now := time.Now()
	for _, g := range f.byID {
		if g.CredentialID == credentialID && !g.Revoked {
			g.Revoked = true
			g.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

type fakeAuditRepo struct {
	entries []*models.AccessLogEntry

	createErr error
}

func newFakeAuditRepo() *fakeAuditRepo { return &fakeAuditRepo{} }

func (f *fakeAuditRepo) Create(ctx context.Context, entry *models.AccessLogEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	entry.Timestamp = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) matches(e *models.AccessLogEntry, fl auditlog.Filter) bool {
	if fl.Action != "" && e.Action != fl.Action {
		return false
	}
	if !fl.From.IsZero() && e.Timestamp.Before(fl.From) {
		return false
	}
	if !fl.To.IsZero() && e.Timestamp.After(fl.To) {
		return false
	}
	return true
}

func (f *fakeAuditRepo) ListByCredential(ctx context.Context, credentialID string, fl auditlog.Filter) ([]*models.AccessLogEntry, error) {
	return f.ListByCredentials(ctx, []string{credentialID}, fl)
}

func (f *fakeAuditRepo) ListByCredentials(ctx context.Context, credentialIDs []string, fl auditlog.Filter) ([]*models.AccessLogEntry, error) {
	ids := make(map[string]struct{}, len(credentialIDs))
	for _, id := range credentialIDs {
		ids[id] = struct{}{}
	}
	var out []*models.AccessLogEntry
	for _, e := range f.entries {
		if _, ok := ids[e.CredentialID]; ok && f.matches(e, fl) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) StatsByCredential(ctx context.Context, credentialID string) (*models.AccessStats, error) {
	stats := &models.AccessStats{ByAction: make(map[models.AccessAction]int64)}
	for _, e := range f.entries {
		if e.CredentialID != credentialID {
			continue
		}
		stats.ByAction[e.Action]++
		switch e.Action {
		case models.ActionAccessed, models.ActionAccessDenied:
			stats.TotalAccesses++
			if e.Action == models.ActionAccessed && e.Success {
				stats.SuccessfulAccesses++
			}
		}
	}
	return stats, nil
}

func (f *fakeAuditRepo) countByAction(action models.AccessAction) int {
	n := 0
	for _, e := range f.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fakeKeyRepo struct {
	keys map[string]*models.UserKey
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[string]*models.UserKey)}
}

func (f *fakeKeyRepo) Create(ctx context.Context, key *models.UserKey) error {
	if _, ok := f.keys[key.UserID]; ok {
		return common.ErrorKeyAlreadyExists
	}
	key.CreatedAt = time.Now()
	f.keys[key.UserID] = key
	return nil
}

func (f *fakeKeyRepo) GetByUser(ctx context.Context, userID string) (*models.UserKey, error) {
	key, ok := f.keys[userID]
	if !ok {
		return nil, common.ErrorKeyNotFound
	}
	return key, nil
}

func (f *fakeKeyRepo) Delete(ctx context.Context, userID string) error {
	if _, ok := f.keys[userID]; !ok {
		return common.ErrorKeyNotFound
	}
	delete(f.keys, userID)
	return nil
}

type fakeAttachmentRepo struct {
	byCredential map[string]*models.Attachment
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{byCredential: make(map[string]*models.Attachment)}
}

func (f *fakeAttachmentRepo) Create(ctx context.Context, att *models.Attachment) error {
	att.CreatedAt = time.Now()
	f.byCredential[att.CredentialID] = att
	return nil
}

func (f *fakeAttachmentRepo) GetByCredential(ctx context.Context, credentialID string) (*models.Attachment, error) {
	att, ok := f.byCredential[credentialID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return att, nil
}

func (f *fakeAttachmentRepo) MarkUploaded(ctx context.Context, id string) error {
	for _, att := range f.byCredential {
		if att.ID == id {
			att.UploadStatus = models.UploadStatusUploaded
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeAttachmentRepo) DeleteByCredential(ctx context.Context, credentialID string) error {
	delete(f.byCredential, credentialID)
	return nil
}

// -------- repository manager fake --------

type fakeRepoManager struct {
	creds *fakeCredRepo
	gr    *fakeGrantRepo
	audit *fakeAuditRepo
	keys  *fakeKeyRepo
	atts  *fakeAttachmentRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		creds: newFakeCredRepo(),
		gr:    newFakeGrantRepo(),
		audit: newFakeAuditRepo(),
		keys:  newFakeKeyRepo(),
		atts:  newFakeAttachmentRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentials.Repository { return m.creds }
func (m *fakeRepoManager) Grants(db dbx.DBTX) grants.Repository           { return m.gr }
func (m *fakeRepoManager) AuditLog(db dbx.DBTX) auditlog.Repository       { return m.audit }
func (m *fakeRepoManager) UserKeys(db dbx.DBTX) userkeys.Repository       { return m.keys }
func (m *fakeRepoManager) Attachments(db dbx.DBTX) attachments.Repository { return m.atts }

// -------- harness --------

type testEnv struct {
	db        *sql.DB
	mock      sqlmock.Sqlmock
	rm        *fakeRepoManager
	custodian *keystore.Custodian
	ledger    *ledger.InMemoryClient
	audit     *AuditService
	creds     *CredentialService
	grants    *GrantService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rm := newFakeRepoManager()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	custodian := keystore.NewCustodian(rm.keys, []byte("test-pass"), []byte("test-salt"))
	lc := ledger.NewInMemoryClient("testnet")

	audit := NewAuditService(db, rm, logger)
	credSvc := NewCredentialService(db, rm, custodian, lc, audit, logger)
	grantSvc := NewGrantService(db, rm, audit, logger)

	return &testEnv{
		db:        db,
		mock:      mock,
		rm:        rm,
		custodian: custodian,
		ledger:    lc,
		audit:     audit,
		creds:     credSvc,
		grants:    grantSvc,
	}
}

func (e *testEnv) storeCredential(t *testing.T, userID string, credType models.CredentialType) *models.Credential {
	t.Helper()
	cred, err := e.creds.StoreCredential(context.Background(), StoreCredentialParams{
		UserID:    userID,
		Type:      credType,
		Issuer:    "MIT",
		IssueDate: time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		ClaimData: map[string]any{"title": "BSc Computer Science", "gpa": "3.9"},
	})
	if err != nil {
		t.Fatalf("StoreCredential error: %v", err)
	}
	return cred
}

func (e *testEnv) grantAccess(t *testing.T, credentialID, grantee, ownerID string) *models.AccessGrant {
	t.Helper()
	grant, err := e.grants.GrantAccess(context.Background(), credentialID, grantee, 30, "background check", ownerID)
	if err != nil {
		t.Fatalf("GrantAccess error: %v", err)
	}
	return grant
}
