package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locator-validation/internal/config"
	"github.com/iliyamo/locator-validation/internal/database"
	"github.com/iliyamo/locator-validation/internal/handler"
	"github.com/iliyamo/locator-validation/internal/middleware"
	"github.com/iliyamo/locator-validation/internal/queue"
	"github.com/iliyamo/locator-validation/internal/repository"
	"github.com/iliyamo/locator-validation/internal/router"
	"github.com/iliyamo/locator-validation/internal/service"
	"github.com/iliyamo/locator-validation/internal/source"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		logger.Fatal(err)
	}
	db, err := openDB(cfg, dialect)
	if err != nil {
		config.LogError(logger, "main", "openDB", "connect ledger database", cfg.DBDriver, err)
		logger.Fatal("database unavailable")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		config.LogError(logger, "main", "Migrate", "apply schema", nil, err)
		logger.Fatal("migration failed")
	}

	tickets := repository.NewTicketRepo(db, dialect)
	consumptions := repository.NewConsumptionRepo(db, dialect)
	idempotency := repository.NewIdempotencyRepo(db, dialect)
	validations := repository.NewValidationRepo(db)

	var candidates source.CandidateSource
	switch cfg.CandidateSource {
	case config.SourceRemote:
		remote, err := source.OpenRemote(cfg.RemoteSourceDSN, cfg.RemoteSourceTimeout)
		if err != nil {
			config.LogError(logger, "main", "OpenRemote", "connect candidate source", nil, err)
			logger.Fatal("candidate source unavailable")
		}
		defer remote.Close()
		candidates = remote
	default:
		candidates = source.NewLocalSource(tickets)
	}

	engine := service.NewLocatorValidator(db, dialect, candidates, consumptions, idempotency, validations, logger)
	if cfg.EventsEnabled {
		publisher := queue.NewPublisher(cfg.RabbitMQURL, logger)
		defer publisher.Close()
		engine.WithEvents(publisher)
		go func() {
			if err := queue.NewConsumer(cfg.RabbitMQURL, "logs", logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("validation consumer stopped")
			}
		}()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting and reset locking disabled")
	} else {
		defer rdb.Close()
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(requestLogger(logger))

	router.RegisterRoutes(e, db)
	router.RegisterValidation(e, handler.NewValidationHandler(engine, validations, logger), cfg.JWTSecret, limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(tickets, consumptions, config.NewLocker(rdb), cfg.AllowLedgerReset, logger), cfg.JWTSecret)

	addr := ":" + cfg.Port
	logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "source": cfg.CandidateSource, "db": cfg.DBDriver}).Info("listening")
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	if err := engine.Drain(shutdownCtx); err != nil {
		logger.WithError(err).Warn("validation events still in flight at exit")
	}
}

func openDB(cfg config.Config, d database.Dialect) (*sql.DB, error) {
	if d == database.SQLite {
		return database.OpenSQLite(cfg.SQLitePath)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// requestLogger emits one structured line per request.
func requestLogger(logger *logrus.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
				"user_id":    middleware.ActorFrom(c).UserID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
