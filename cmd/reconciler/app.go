package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assocworks/sepa-billing/internal/adapters/logger"
	"github.com/assocworks/sepa-billing/internal/adapters/postgres"
	"github.com/assocworks/sepa-billing/internal/adapters/secrets"
	"github.com/assocworks/sepa-billing/internal/config"
	"github.com/assocworks/sepa-billing/internal/services/guard"
	"github.com/assocworks/sepa-billing/internal/services/lockkeeper"
	"github.com/assocworks/sepa-billing/internal/services/matcher"
	"github.com/assocworks/sepa-billing/internal/services/payment"
	"github.com/assocworks/sepa-billing/internal/services/period"
	"github.com/assocworks/sepa-billing/internal/services/reconcile"
	"github.com/assocworks/sepa-billing/internal/services/returns"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// app wires configuration, storage and services for the CLI commands
type app struct {
	cfg    *config.Config
	log    *logger.ZapLogger
	pool   *pgxpool.Pool
	db     *postgres.DBExecutor
	guard  *guard.Guard
	gen    *period.Generator
	coord  *reconcile.Coordinator
	retrns *returns.Processor
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	password, err := secrets.ResolveDatabasePassword(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("resolve database credential: %w", err)
	}
	cfg.Database.Password = password

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db := postgres.NewDBExecutor(pool)
	clock := timeutil.SystemClock{}

	invoices := postgres.NewInvoiceRepository(db, log)
	batches := postgres.NewBatchRepository(db, log)
	payments := postgres.NewPaymentRepository(db, log)
	bankTxs := postgres.NewBankTransactionRepository(db, log)
	mandates := postgres.NewMandateRepository(db, log)
	returnsRepo := postgres.NewReturnRepository(db, log)
	idempotency := postgres.NewIdempotencyRepository(db, log)

	registry := period.NewRegistry(invoices, cfg.Guard.MembershipTokens, log)
	invoiceGuard := guard.New(registry, invoices, batches, mandates, cfg.Guard.Mode, log)
	match := matcher.New(batches, cfg.Matcher, log)
	poster := payment.NewPoster(invoices, payments, cfg.Matcher.Tolerance, clock, log)
	locks := lockkeeper.NewLockService(cfg.Locks.TTL, clock)
	executor := lockkeeper.NewExecutor(db, idempotency, clock, log)

	return &app{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		db:     db,
		guard:  invoiceGuard,
		gen:    period.NewGenerator(),
		coord:  reconcile.NewCoordinator(db, bankTxs, batches, match, invoiceGuard, poster, locks, executor, log),
		retrns: returns.NewProcessor(db, payments, returnsRepo, poster, clock, log),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
	_ = a.log.Sync()
}
