package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/internal/handlers"
	"github.com/Ramsey-B/aster/pkg/cache"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/insights"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/routes/health"
	"github.com/Ramsey-B/aster/pkg/scheduler"
	"github.com/Ramsey-B/aster/pkg/sources"
	"github.com/Ramsey-B/aster/pkg/startup"
	"github.com/Ramsey-B/aster/pkg/syncer"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	tracerShutdown, err := setupTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to set up tracing")
		os.Exit(1)
	}
	defer tracerShutdown(context.Background())

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	var db database.DB
	var sqlxDB *sqlx.DB
	boot.AddDependency(&component{
		name: "database",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
				cfg.DatabaseName, cfg.DatabaseSSLMode)

			conn, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			conn.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			conn.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			conn.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			sqlxDB = conn
			db = database.NewDatabaseInstance(conn, logger)

			driver, err := migratepg.WithInstance(conn.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
			})
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
		stop: func(ctx context.Context) error {
			if sqlxDB != nil {
				return sqlxDB.Close()
			}
			return nil
		},
	})

	var redisClient *redis.Client
	boot.AddDependency(&component{
		name: "redis",
		start: func(ctx context.Context) error {
			client, err := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return err
			}
			redisClient = client
			return nil
		},
		stop: func(ctx context.Context) error {
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		},
	})

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		boot.AddDependency(&component{
			name: "kafka",
			start: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaSyncEventTopic), logger)
				return nil
			},
			stop: func(ctx context.Context) error {
				if producer != nil {
					return producer.Close()
				}
				return nil
			},
		})
	}

	var sched *scheduler.Scheduler
	var server *http.Server
	var checker *health.Checker

	boot.AddDependency(&component{
		name:      "service",
		dependsOn: dependsOnKafka(cfg, "database", "redis"),
		start: func(ctx context.Context) error {
			integrationRepo := repositories.NewIntegrationRepository(db, logger)
			recordRepo := repositories.NewRecordRepository(db, logger)
			insightRepo := repositories.NewInsightRepository(db, logger)

			engine := insights.NewEngine(recordRepo, insightRepo, logger)
			invalidator := cache.NewRedisInvalidator(redisClient, logger)
			source := sources.NewHTTPSource(sources.Config{
				BaseURL: cfg.SourceBaseURL,
				Timeout: cfg.SourceTimeout,
			}, logger)
			reconciler := syncer.NewReconciler(recordRepo, logger)

			opts := []syncer.OrchestratorOption{syncer.WithBudget(cfg.SyncMaxDuration)}
			if producer != nil {
				opts = append(opts, syncer.WithEmitter(events.NewKafkaEmitter(producer)))
			}
			orchestrator := syncer.NewOrchestrator(integrationRepo, reconciler, source, engine, invalidator, logger, opts...)

			if cfg.SchedulerEnabled {
				locker := redis.NewLocker(redisClient, scheduler.LockKeyPrefix)
				sched = scheduler.NewScheduler(
					scheduler.NewSchedulerRepository(db, logger),
					orchestrator,
					locker,
					scheduler.Config{
						PollInterval: cfg.SchedulerPollInterval,
						LockTTL:      cfg.SchedulerLockTTL,
						BatchSize:    cfg.SchedulerBatchSize,
					},
					logger,
				)
				if err := sched.Start(ctx); err != nil {
					return err
				}
			}

			e := echo.New()
			e.HideBanner = true
			e.HTTPErrorHandler = middleware.Error(logger)
			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Context())
			e.Use(middleware.Logger(logger))
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.AllowOrigins,
				AllowMethods: cfg.AllowMethods,
			}))

			checker = health.NewChecker(db, redisClient, version)
			checker.RegisterRoutes(e)
			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			api := e.Group("/api/v1")
			handlers.NewIntegrationHandler(integrationRepo).RegisterRoutes(api)
			handlers.NewSyncHandler(orchestrator).RegisterRoutes(api)
			handlers.NewInsightHandler(insightRepo).RegisterRoutes(api)

			server = &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           e,
				ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			go func() {
				logger.Infof("Listening on :%d", cfg.Port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server failed")
					os.Exit(1)
				}
			}()

			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			if checker != nil {
				checker.SetReady(false)
			}
			if sched != nil {
				if err := sched.Stop(ctx); err != nil {
					logger.WithError(err).Warn("Scheduler did not stop cleanly")
				}
			}
			if server != nil {
				return server.Shutdown(ctx)
			}
			return nil
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func setupTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	if cfg.OTLPEnabled {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	} else {
		exporter = &exporters.ConsoleExporter{}
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	return tp.Shutdown, nil
}

// component adapts closures to the startup dependency contract.
type component struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (c *component) GetName() string     { return c.name }
func (c *component) DependsOn() []string { return c.dependsOn }

func (c *component) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}

func (c *component) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}

func dependsOnKafka(cfg config.Config, base ...string) []string {
	if cfg.KafkaEnabled {
		return append(base, "kafka")
	}
	return base
}
