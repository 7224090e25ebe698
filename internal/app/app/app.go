package app

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/cache"
	"backoffice/internal/app/config"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/metrics"
	"backoffice/internal/app/model"
	"backoffice/internal/app/service/ledger"
	"backoffice/internal/app/session"
	"backoffice/internal/app/storage"
	"backoffice/internal/app/storage/memory"
	"backoffice/internal/app/storage/postgres"
	"backoffice/pkg/receiptstore"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	config  config.Config
	logger  logger.Logger
	metrics *metrics.Metrics
	users   storage.UserRepository
	orders  storage.OrderRepository
	ledger  *ledger.Service
	session session.Manager
	db      *sql.DB
	redis   *redis.Client
	stopCh  chan struct{}
}

type repositories struct {
	users        storage.UserRepository
	orders       storage.OrderRepository
	transactions storage.TransactionRepository
	ledger       storage.Ledger
}

func New(cfg config.Config, l logger.Logger, e embed.FS) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		config:  cfg,
		logger:  l,
		metrics: metrics.New(reg),
		stopCh:  make(chan struct{}),
	}

	repos, err := a.openStorage(e)
	if err != nil {
		return nil, err
	}
	a.users = repos.users
	a.orders = repos.orders

	var queryCache ledger.QueryCache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(context.Background()).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		queryCache = cache.NewRedis(a.redis, cache.WithTTL(cfg.Redis.CacheTTL))
		a.session = session.NewRedis(cfg.SecretKey, a.redis, a.users, session.WithTokenLifetime(cfg.Session.TTL))
		l.Info().Str("addr", cfg.Redis.Addr).Msg("Redis query cache and sessions enabled")
	} else {
		a.session = session.NewMemory(cfg.SecretKey, a.users, session.WithTokenLifetime(cfg.Session.TTL))
	}

	receipts, err := receiptstore.NewService(cfg.Receipts.StoreURL,
		receiptstore.WithLogger(l.Logger),
		receiptstore.WithBreaker(
			uint32(cfg.Receipts.Breaker.MaxRequests),
			cfg.Receipts.Breaker.Interval,
			cfg.Receipts.Breaker.Timeout,
			uint32(cfg.Receipts.Breaker.Failures),
		),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("receipt store init: %w", err)
	}

	a.ledger = ledger.NewService(repos.users, repos.orders, repos.transactions, repos.ledger,
		ledger.WithReceiptStore(receipts),
		ledger.WithQueryCache(queryCache),
		ledger.WithMetrics(a.metrics),
		ledger.WithMaxLimit(cfg.Pagination.MaxLimit),
		ledger.WithMaxReceiptBytes(cfg.Receipts.MaxBytes),
	)

	if err := a.bootstrapAdmin(context.Background()); err != nil {
		a.close()
		return nil, err
	}

	go func() {
		<-a.stopCh
		a.logger.Info().Msg("Shutting down application")
		a.close()
	}()

	return a, nil
}

// openStorage connects to postgres when a DSN is configured and falls back to process memory
func (a *App) openStorage(e embed.FS) (*repositories, error) {
	if a.config.Database.DSN == "" {
		a.logger.Warn().Msg("DATABASE_URI is empty, using in-memory storage")
		db := memory.NewDB()
		return &repositories{
			users:        memory.NewUserRepository(db),
			orders:       memory.NewOrderRepository(db),
			transactions: memory.NewTransactionRepository(db),
			ledger:       memory.NewLedger(db),
		}, nil
	}

	db, err := sql.Open("postgres", a.config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	a.db = db

	if err := db.Ping(); err != nil {
		a.close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := applyMigrations(e, db); err != nil {
		a.close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	users, err := postgres.NewUserRepository(db)
	if err != nil {
		return nil, fmt.Errorf("user repository init: %w", err)
	}

	orders, err := postgres.NewOrderRepository(db)
	if err != nil {
		return nil, fmt.Errorf("order repository init: %w", err)
	}

	transactions, err := postgres.NewTransactionRepository(db)
	if err != nil {
		return nil, fmt.Errorf("transaction repository init: %w", err)
	}

	l, err := postgres.NewLedger(db)
	if err != nil {
		return nil, fmt.Errorf("ledger init: %w", err)
	}

	return &repositories{users: users, orders: orders, transactions: transactions, ledger: l}, nil
}

// bootstrapAdmin creates the configured administrator unless the login is taken
func (a *App) bootstrapAdmin(ctx context.Context) error {
	if a.config.Admin.Login == "" {
		return nil
	}

	_, err := a.users.Create(ctx, &model.User{
		Name:     a.config.Admin.Login,
		Password: a.config.Admin.Password,
		Role:     model.RoleAdmin,
	})
	if errors.Is(err, apperr.ErrConflict) {
		a.logger.Info().Str("login", a.config.Admin.Login).Msg("Admin account already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	a.logger.Info().Str("login", a.config.Admin.Login).Msg("Admin account created")
	return nil
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("redis close")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("db close")
		}
	}
}

func (a *App) Stop() {
	close(a.stopCh)
}
