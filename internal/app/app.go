// Package app wires the Runtime: every store, adapter, and dispatcher the
// api and scheduler modes share, built once and passed by reference.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jedmorris/syncforge/internal/config"
	"github.com/jedmorris/syncforge/internal/httpserver"
	"github.com/jedmorris/syncforge/internal/platform"
	"github.com/jedmorris/syncforge/internal/telemetry"
	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/adapter/etsy"
	"github.com/jedmorris/syncforge/pkg/adapter/printify"
	"github.com/jedmorris/syncforge/pkg/adapter/shopify"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/domain"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/newsletter"
	"github.com/jedmorris/syncforge/pkg/notify"
	"github.com/jedmorris/syncforge/pkg/queue"
	"github.com/jedmorris/syncforge/pkg/scheduler"
	"github.com/jedmorris/syncforge/pkg/synclog"
	"github.com/jedmorris/syncforge/pkg/tenant"
	"github.com/jedmorris/syncforge/pkg/vault"
	"github.com/jedmorris/syncforge/pkg/worker"
)

// Run reads config, connects to infrastructure, wires the Runtime, and
// starts the mode selected by cfg.Mode ("api" or "scheduler").
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting syncforge", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := platform.NewMetricsRegistry(telemetry.All()...)

	rt, err := buildRuntime(ctx, cfg, logger, db)
	if err != nil {
		return fmt.Errorf("wiring runtime: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, metricsReg, rt)
	case "scheduler":
		return runScheduler(ctx, cfg, logger, rdb, rt)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runtime holds every shared component, built once in buildRuntime and
// passed by reference to whichever mode needs it.
type runtime struct {
	jobs       *queue.Store
	tenants    *tenant.Store
	accounts   *connaccount.Store
	syncLog    *synclog.Store
	budget     *budgeter.Budgeter
	registry   *adapter.Registry
	notifier   *notify.Notifier
	newsletter *newsletter.Service // nil when NEWSLETTER_OWNER_TENANT is unset
	scheduler  scheduler.Config
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool) (*runtime, error) {
	tenants := tenant.NewStore(db)
	accounts := connaccount.NewStore(db)
	jobs := queue.NewStore(db)
	syncLog := synclog.NewStore(db)

	budgetStore := budgeter.NewStore(db)
	budget := budgeter.New(budgetStore)
	if err := budget.Seed(ctx); err != nil {
		return nil, fmt.Errorf("seeding rate budgeter: %w", err)
	}
	if err := budget.RefreshActiveTenants(ctx); err != nil {
		logger.Warn("initial active-tenant refresh failed, starting with zero counts", "error", err)
	}

	tokenVault, err := vault.New(cfg.TokenEncryptionKey, accounts, cfg.CommerceAAPIKey, cfg.CommerceBAPIKey, cfg.CommerceBAPISecret)
	if err != nil {
		return nil, fmt.Errorf("constructing token vault: %w", err)
	}

	hc := httpclient.New(logger)

	orders := domain.NewOrderStore(db)
	products := domain.NewProductStore(db)
	customers := domain.NewCustomerStore(db)
	fees := domain.NewFeeStore(db)

	notifier := notify.New(cfg.NotificationAPIKey, cfg.FromEmail, cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	registry := adapter.NewRegistry()
	registry.Register("commerce-A_orders", etsy.Orders(tokenVault, budget, hc, accounts, orders, tenants, cfg.CommerceAAPIKey))
	registry.Register("commerce-A_listings", etsy.Listings(tokenVault, budget, hc, accounts, products, cfg.CommerceAAPIKey))
	registry.Register("commerce-A_payments", etsy.Payments(tokenVault, budget, hc, accounts, orders, fees, cfg.CommerceAAPIKey))

	registry.Register("commerce-B_orders", shopify.Orders(tokenVault, budget, hc, accounts, orders, tenants))
	registry.Register("commerce-B_products", shopify.Products(tokenVault, budget, hc, accounts, products))
	registry.Register("commerce-B_customers", shopify.Customers(tokenVault, budget, hc, accounts, customers))

	registry.Register("fulfillment-F_orders", printify.Orders(tokenVault, budget, hc, accounts, orders, tenants))
	registry.Register("fulfillment-F_products", printify.Products(tokenVault, budget, hc, accounts, products))

	registry.Register("backfill", adapter.Backfill(registry, accounts, syncLog, logger))

	var newsletterSvc *newsletter.Service
	if cfg.NewsletterOwnerTenant != "" {
		ownerTenant, err := uuid.Parse(cfg.NewsletterOwnerTenant)
		if err != nil {
			return nil, fmt.Errorf("parsing NEWSLETTER_OWNER_TENANT: %w", err)
		}

		subscribers := newsletter.NewStore(db)
		downstream := newsletter.NewDownstream(hc, cfg.DownstreamNewsletterURL)
		beehiiv := newsletter.NewBeehiivClient(hc, cfg.NewsletterAPIKey, cfg.NewsletterPublicationID)
		newsletterSvc = newsletter.NewService(subscribers, downstream, beehiiv, syncLog, ownerTenant, logger)

		registry.Register("newsletter_retry", newsletterSvc.RetryPending())
		registry.Register("reconcile_newsletter-N", newsletterSvc.Reconcile())
	} else {
		logger.Info("newsletter sync disabled (NEWSLETTER_OWNER_TENANT not set)")
	}

	return &runtime{
		jobs:       jobs,
		tenants:    tenants,
		accounts:   accounts,
		syncLog:    syncLog,
		budget:     budget,
		registry:   registry,
		notifier:   notifier,
		newsletter: newsletterSvc,
		scheduler: scheduler.Config{
			Interval:     time.Minute,
			BatchSize:    cfg.SchedulerBatchSize,
			StaleMinutes: cfg.StaleMinutes,
			Concurrency:  8,
		},
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry, rt *runtime) error {
	srv := httpserver.NewServer(cfg, logger, metricsReg)

	if rt.newsletter != nil {
		srv.MountWebhook("/beehiiv-subscriber-webhook", newsletterVerify(cfg), rt.newsletter.Handler())
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runScheduler(ctx context.Context, cfg *config.Config, logger *slog.Logger, rdb *redis.Client, rt *runtime) error {
	wrk := worker.New(rt.jobs, rt.accounts, rt.tenants, rt.syncLog, rt.registry, rt.notifier, logger)
	sched := scheduler.New(rt.jobs, rt.tenants, rt.accounts, rt.budget, wrk, rdb, logger, rt.scheduler)

	if rt.newsletter != nil {
		if err := seedMaintenanceJobs(ctx, rt); err != nil {
			logger.Error("seeding newsletter maintenance jobs", "error", err)
		}
	}

	return sched.Run(ctx)
}

// seedMaintenanceJobs enqueues the first run of the newsletter's global
// (non per-tenant) maintenance jobs if none is already queued. Subsequent
// runs are kept alive by the worker runtime's own schedule-next step, the
// same as any other recurring job_type.
func seedMaintenanceJobs(ctx context.Context, rt *runtime) error {
	ownerTenantID := rt.newsletter.OwnerTenant()

	for _, jobType := range []string{"newsletter_retry", "reconcile_newsletter-N"} {
		pending, err := rt.jobs.HasPendingRun(ctx, ownerTenantID, jobType)
		if err != nil {
			return fmt.Errorf("checking pending run for %s: %w", jobType, err)
		}
		if pending {
			continue
		}
		if _, err := rt.jobs.Enqueue(ctx, ownerTenantID, jobType, 0, time.Now().UTC()); err != nil {
			return fmt.Errorf("seeding %s: %w", jobType, err)
		}
	}
	return nil
}

func newsletterVerify(cfg *config.Config) func(http.Handler) http.Handler {
	return newsletter.VerifyMiddleware(cfg.NewsletterWebhookSecret)
}
