package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/geodeck/authcore/pkg/api"
	"github.com/geodeck/authcore/pkg/audit"
	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/config"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/guard"
	"github.com/geodeck/authcore/pkg/httputil"
	"github.com/geodeck/authcore/pkg/membership"
	"github.com/geodeck/authcore/pkg/observability"
	"github.com/geodeck/authcore/pkg/workspace"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout)
	log.Info("starting authcore",
		"port", cfg.Server.Port,
		"health_port", cfg.Server.HealthPort,
		"application_id", cfg.Directory.ApplicationID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("otel shutdown failed")
		}
	}()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	var dirOpts []directory.Option
	if metrics != nil {
		dirOpts = append(dirOpts, directory.WithMetrics(
			metrics.DirectoryRequestsTotal, metrics.DirectoryRequestDuration))
	}
	dir, err := directory.NewHTTPClient(directory.Config{
		BaseURL:      cfg.Directory.BaseURL,
		TokenURL:     cfg.Directory.TokenURL,
		ClientID:     cfg.Directory.ClientID,
		ClientSecret: cfg.Directory.ClientSecret,
		Audience:     cfg.Directory.Audience,
		Timeout:      cfg.Directory.Timeout,
	}, dirOpts...)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create Directory client")
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load scope catalog")
	}
	log.Info("catalog loaded", "domains", len(cat.Domains), "roles", len(cat.Roles))

	var redisClient *redis.Client
	var resolverOpts []membership.ResolverOption
	if cfg.Cache.Enabled {
		cacheOpts := []membership.CacheOption{membership.WithTTL(cfg.Cache.TTL)}
		if metrics != nil {
			cacheOpts = append(cacheOpts, membership.WithCacheMetrics(metrics))
		}
		if cfg.Cache.RedisURL != "" {
			redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
			if err != nil {
				logrus.WithError(err).Fatal("Failed to parse redis URL")
			}
			if cfg.Cache.RedisPassword != "" {
				redisOpts.Password = cfg.Cache.RedisPassword
			}
			if cfg.Cache.RedisDB != 0 {
				redisOpts.DB = cfg.Cache.RedisDB
			}
			redisClient = redis.NewClient(redisOpts)
			cacheOpts = append(cacheOpts, membership.WithRedis(redisClient))
		}
		resolverOpts = append(resolverOpts,
			membership.WithCache(membership.NewCache(cfg.Cache.L1Size, log, cacheOpts...)))
	}
	resolver := membership.NewResolver(dir, log, resolverOpts...)

	guardOpts := []guard.Option{guard.WithLogger(log)}
	if metrics != nil {
		guardOpts = append(guardOpts, guard.WithMetrics(metrics))
	}
	g := guard.New(cfg.Auth.PublicOrg, guardOpts...)

	verifier, err := guard.NewTokenVerifier(ctx, guard.TokenVerifierConfig{
		IssuerURL:        cfg.Auth.IssuerURL,
		Audience:         cfg.Auth.Audience,
		ClaimsNamespace:  cfg.Auth.ClaimsNamespace,
		GroupsClaim:      cfg.Auth.GroupsClaim,
		PermissionsClaim: cfg.Auth.PermissionsClaim,
	}, log)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up token verification")
	}

	var auditor audit.Logger = audit.NopLogger{}
	var auditDB *sql.DB
	if cfg.Audit.PostgresURL != "" {
		auditDB, err = sql.Open("postgres", cfg.Audit.PostgresURL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open audit database")
		}
		defer auditDB.Close()
		dbLogger, err := audit.NewDBLogger(auditDB)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize audit sink")
		}
		auditor = dbLogger
		log.Info("audit sink enabled")
	}

	server := api.NewServer(api.ServerConfig{
		Directory:       dir,
		Catalog:         cat,
		Resolver:        resolver,
		Guard:           g,
		Auditor:         auditor,
		ApplicationID:   cfg.Directory.ApplicationID,
		Logger:          log,
		Metrics:         metrics,
		TokenMiddleware: verifier.Middleware(false),
	})

	if cfg.Catalog.ReconcileSchedule != "" {
		scheduler, err := workspace.NewScheduler(server, cfg.Catalog.ReconcileSchedule, log)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid reconcile schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if cfg.Catalog.WatchEnabled {
		watcher, err := workspace.NewCatalogWatcher(cfg.Catalog.Path, log, func(cat *catalog.Catalog) {
			server.SwapCatalog(cat)
			if _, err := server.Reconcile(ctx); err != nil {
				log.WithError(err).Error("reconciliation after catalog reload failed")
			}
		})
		if err != nil {
			logrus.WithError(err).Fatal("Failed to watch catalog file")
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("catalog watcher stopped")
			}
		}()
	}

	healthSrv := healthServer(cfg, dir, redisClient, auditDB, metrics)
	go func() {
		log.Info("health server listening", "port", cfg.Server.HealthPort)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("health server failed")
		}
	}()

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
	)(server.Router())
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "authcore")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("api server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("API server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("api server shutdown failed")
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("health server shutdown failed")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("redis close failed")
		}
	}
	log.Info("shutdown complete")
}

// healthServer serves liveness, readiness and metrics on the probe port.
func healthServer(cfg *config.Config, dir directory.Client, redisClient *redis.Client, auditDB *sql.DB, metrics *observability.Metrics) *http.Server {
	checker := observability.NewHealthChecker(func(ctx context.Context) error {
		_, err := dir.GetGroups(ctx)
		return err
	}, redisClient, auditDB)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
}
