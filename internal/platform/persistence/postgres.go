package persistence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/progress-ledger/internal/config"
	"go.uber.org/zap"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxBeginner starts transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is a Querier that can also open transactions. *pgxpool.Pool and pgxmock pools satisfy it.
type Pool interface {
	Querier
	TxBeginner
}

var _ Querier = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)
var _ Pool = (*pgxpool.Pool)(nil)

type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

type postgresOptions struct {
	applicationName string
	migrate         bool
}

// PostgresOption tunes NewPostgresDB.
type PostgresOption func(*postgresOptions)

// WithApplicationName labels the pool's sessions in pg_stat_activity.
func WithApplicationName(name string) PostgresOption {
	return func(o *postgresOptions) {
		o.applicationName = name
	}
}

// WithoutMigrations connects to an existing schema without migrating it, for tools
// such as ledgerctl that must not change the database they inspect.
func WithoutMigrations() PostgresOption {
	return func(o *postgresOptions) {
		o.migrate = false
	}
}

// NewPostgresDB applies pending migrations, unless disabled, and opens a connection pool.
func NewPostgresDB(ctx context.Context, logger *zap.Logger, cfg *config.PostgresConfig, opts ...PostgresOption) (*PostgresDB, error) {
	options := postgresOptions{applicationName: "progress-ledger", migrate: true}
	for _, opt := range opts {
		opt(&options)
	}

	if options.migrate {
		if err := RunMigrations(logger, cfg.URL, cfg.MigrationsPath); err != nil {
			return nil, err
		}
	}

	poolConfig, err := poolConfigFor(cfg, options.applicationName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("application_name", options.applicationName),
		zap.Bool("migrated", options.migrate),
		zap.Int32("max_conns", cfg.MaxConns),
	)

	return &PostgresDB{
		pool:   pool,
		logger: logger,
	}, nil
}

func poolConfigFor(cfg *config.PostgresConfig, applicationName string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	params := poolConfig.ConnConfig.RuntimeParams
	if applicationName != "" {
		params["application_name"] = applicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return poolConfig, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// InTx runs fn in a transaction, rolling back on error or panic and committing otherwise.
func InTx(ctx context.Context, beginner TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
