package credentials

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var credRows = []string{
	"id", "user_id", "type", "issuer", "issue_date", "expiry_date",
	"ciphertext", "nonce", "auth_tag", "digest", "ledger_tx_id", "block_number", "created_at", "metadata",
}

func addCredRow(rows *sqlmock.Rows, id, userID, credType string) *sqlmock.Rows {
	return rows.AddRow(
		id, userID, credType, "MIT",
		time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC), nil,
		[]byte("ct"), []byte("n"), []byte("t"), []byte("dg"),
		"tx-1", int64(42), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		[]byte(`{"source":"import"}`),
	)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO credentials .* RETURNING created_at`)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(q.String()).
		WithArgs("c1", "u1", "degree", "MIT", sqlmock.AnyArg(), nil,
			[]byte("ct"), []byte("n"), []byte("t"), []byte("dg"), "tx-1", int64(42), []byte(`{"source":"import"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	cred := &models.Credential{
		ID:          "c1",
		UserID:      "u1",
		Type:        models.CredentialTypeDegree,
		Issuer:      "MIT",
		IssueDate:   time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		Ciphertext:  []byte("ct"),
		Nonce:       []byte("n"),
		AuthTag:     []byte("t"),
		Digest:      []byte("dg"),
		LedgerTxID:  "tx-1",
		BlockNumber: 42,
		Metadata:    map[string]string{"source": "import"},
	}
	if err := repo.Create(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cred.CreatedAt.Equal(created) {
		t.Fatalf("created_at not populated, got %v", cred.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO credentials .* RETURNING created_at`)
	mock.ExpectQuery(q.String()).WillReturnError(errors.New("db is down"))

	err := repo.Create(context.Background(), &models.Credential{ID: "c1", Type: models.CredentialTypeDegree})
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM credentials WHERE id = \$1 AND NOT deleted`)
	mock.ExpectQuery(q.String()).
		WithArgs("c1").
		WillReturnRows(addCredRow(sqlmock.NewRows(credRows), "c1", "u1", "degree"))

	got, err := repo.GetByID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c1" || got.Type != models.CredentialTypeDegree || got.BlockNumber != 42 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Metadata["source"] != "import" {
		t.Fatalf("metadata not decoded: %+v", got.Metadata)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM credentials WHERE id = \$1 AND NOT deleted`)
	mock.ExpectQuery(q.String()).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGetByID_CorruptTypeColumn(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM credentials WHERE id = \$1 AND NOT deleted`)
	mock.ExpectQuery(q.String()).
		WithArgs("c1").
		WillReturnRows(addCredRow(sqlmock.NewRows(credRows), "c1", "u1", "paper-mill"))

	_, err := repo.GetByID(context.Background(), "c1")
	if err == nil || !regexp.MustCompile(`corrupt credential row c1`).MatchString(err.Error()) {
		t.Fatalf("expected corrupt row error, got %v", err)
	}
}

func TestGetByIDAndUser_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM credentials WHERE id = \$1 AND user_id = \$2 AND NOT deleted`)
	mock.ExpectQuery(q.String()).WithArgs("c1", "intruder").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByIDAndUser(context.Background(), "c1", "intruder")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestListByUser_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM credentials WHERE user_id = \$1 AND NOT deleted ORDER BY created_at DESC`)
	rows := sqlmock.NewRows(credRows)
	addCredRow(rows, "c1", "u1", "degree")
	addCredRow(rows, "c2", "u1", "transcript")

	mock.ExpectQuery(q.String()).WithArgs("u1").WillReturnRows(rows)

	got, err := repo.ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[1].Type != models.CredentialTypeTranscript {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}

func TestListByUser_RowsErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM credentials WHERE user_id = \$1 AND NOT deleted`)
	rows := sqlmock.NewRows(credRows)
	addCredRow(rows, "c1", "u1", "degree").RowError(0, errors.New("row-err"))

	mock.ExpectQuery(q.String()).WithArgs("u1").WillReturnRows(rows)

	_, err := repo.ListByUser(context.Background(), "u1")
	if err == nil || !regexp.MustCompile(`row-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows error, got %v", err)
	}
}

func TestMarkDeleted_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE credentials SET deleted = true WHERE id = \$1 AND user_id = \$2 AND NOT deleted`)
	mock.ExpectExec(q.String()).WithArgs("c1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkDeleted(context.Background(), "c1", "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkDeleted_AlreadyDeletedOrNotOwned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE credentials SET deleted = true WHERE id = \$1 AND user_id = \$2 AND NOT deleted`)
	mock.ExpectExec(q.String()).WithArgs("c1", "intruder").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDeleted(context.Background(), "c1", "intruder")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}
