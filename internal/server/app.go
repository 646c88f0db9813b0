// Package server wires the credential custody subsystem together: database,
// migrations, key custodian, ledger client, and the domain services. It also
// owns graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillchain/credvault/internal/identity"
	"github.com/skillchain/credvault/internal/logging"
	"github.com/skillchain/credvault/internal/server/config"
	"github.com/skillchain/credvault/internal/server/keystore"
	"github.com/skillchain/credvault/internal/server/ledger"
	"github.com/skillchain/credvault/internal/server/repositories/repomanager"
	"github.com/skillchain/credvault/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// healthInterval is how often the running app probes the anchor network.
const healthInterval = time.Minute

// App holds the assembled services. Callers embed it behind whatever
// transport they expose.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	Credentials *services.CredentialService
	Grants      *services.GrantService
	Audit       *services.AuditService
	Attachments *services.AttachmentService
}

// NewApp opens the database, runs migrations, and wires the services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	custodian := keystore.NewCustodian(rm.UserKeys(db),
		[]byte(cfg.MasterPassphrase), []byte(cfg.MasterKeySalt))
	lc := ledger.NewHTTPClient(cfg.LedgerEndpoint, cfg.LedgerNetworkID, cfg.LedgerTimeout)

	audit := services.NewAuditService(db, rm, logger)
	creds := services.NewCredentialService(db, rm, custodian, lc, audit, logger)
	grants := services.NewGrantService(db, rm, audit, logger)
	atts := services.NewAttachmentService(db, rm, custodian, cfg)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		Credentials: creds,
		Grants:      grants,
		Audit:       audit,
		Attachments: atts,
	}, nil
}

// AuthenticateUser verifies an identity token from the platform's identity
// service and returns the acting user id every service call is scoped to.
func (app *App) AuthenticateUser(token string) (string, error) {
	return identity.GetUserIDFromToken(token, []byte(app.config.IdentitySecret))
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// reportHealth logs anchor-network reachability. Readiness only; a ledger
// outage never blocks the data path until a write actually needs an anchor.
func (app *App) reportHealth(ctx context.Context) {
	status, err := app.Credentials.GetNetworkStatus(ctx)
	if err != nil {
		app.logger.Warn(ctx, "anchor network unreachable", "error", err)
		return
	}
	app.logger.Info(ctx, "anchor network ok",
		"network_id", status.NetworkID, "block_number", status.BlockNumber)
}

// Run blocks until the context is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")
	app.initSignalHandler(cancelFunc)
	app.reportHealth(ctx)

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			app.logger.Info(ctx, "shutting down")
			if err := app.db.Close(); err != nil {
				app.logger.Error(ctx, "db close error", "error", err)
			}
			return
		case <-ticker.C:
			app.reportHealth(ctx)
		}
	}
}
