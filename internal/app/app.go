package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/client"
	fileadapter "github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/file"
	mongoadapter "github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/mongo"
	natsadapter "github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/nats"
	redisadapter "github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/redis"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/repository"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/service"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/session"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App wires the cart sync service together from configuration. The module
// has no process surface of its own: a host embeds App, uses Sync and
// Session, and calls Close on the way out.
type App struct {
	cfg        *config.Config
	log        logger.Logger
	sync       service.CartSync
	sessionMgr *session.Manager
	view       *service.ViewState
	store      repository.LocalCartStore
	metrics    *metrics.MetricsManager
	subscriber *natsadapter.AuthSubscriber

	natsConn    *nats.Conn
	redisClient *redis.Client
	mongoClient *mongo.Client
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	logCfg := logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	}
	appLogger, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Infof("Configuration loaded: Env=%s, LocalStore=%s", cfg.Env, cfg.LocalStore.Backend)

	application := &App{
		cfg: cfg,
		log: appLogger,
	}

	store, err := application.newLocalStore(ctx)
	if err != nil {
		return nil, err
	}
	application.store = store
	appLogger.Infof("Local cart store initialized (%s)", cfg.LocalStore.Backend)

	sessionMgr := session.NewManager(cfg.Session.JWTSecret)
	application.sessionMgr = sessionMgr

	httpClient := &http.Client{Timeout: cfg.Gateway.Timeout}
	gateway, err := client.NewCartGateway(cfg.Gateway.BaseURL, httpClient, sessionMgr, appLogger)
	if err != nil {
		application.Close()
		return nil, fmt.Errorf("failed to initialize cart gateway: %w", err)
	}
	appLogger.Infof("Cart gateway initialized for %s", cfg.Gateway.BaseURL)

	metricsManager := metrics.NewMetricsManager("cart_service")
	application.metrics = metricsManager
	if cfg.Metrics.Port != "" {
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port, appLogger, metricsManager.Registry); err != nil && err != http.ErrServerClosed {
				appLogger.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	view := service.NewViewState()
	application.view = view

	syncCfg := service.CartSyncConfig{Metrics: metricsManager}

	if cfg.AuthEvents.Enabled {
		natsConn, err := natsadapter.NewConnection(cfg.NATS, appLogger)
		if err != nil {
			application.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		application.natsConn = natsConn

		publisher, err := natsadapter.NewPublisher(natsConn)
		if err != nil {
			application.Close()
			return nil, fmt.Errorf("failed to initialize NATS publisher: %w", err)
		}
		syncCfg.Publisher = publisher
	}

	cartSync := service.NewCartSync(store, gateway, sessionMgr, view, appLogger, syncCfg)
	application.sync = cartSync
	appLogger.Info("Cart sync service initialized")

	if application.natsConn != nil {
		subscriber, err := natsadapter.NewAuthSubscriber(
			application.natsConn,
			cartSync,
			sessionMgr,
			appLogger,
			cfg.AuthEvents.LoginSubject,
			cfg.AuthEvents.LogoutSubject,
		)
		if err != nil {
			application.Close()
			return nil, fmt.Errorf("failed to initialize auth subscriber: %w", err)
		}
		if err := subscriber.Start(); err != nil {
			application.Close()
			return nil, fmt.Errorf("failed to start auth subscriber: %w", err)
		}
		application.subscriber = subscriber
	}

	return application, nil
}

func (a *App) newLocalStore(ctx context.Context) (repository.LocalCartStore, error) {
	switch a.cfg.LocalStore.Backend {
	case "redis":
		redisClient, err := redisadapter.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		a.redisClient = redisClient
		return redisadapter.NewCartStore(redisClient, a.cfg.LocalStore.TTL, a.log), nil
	case "mongo":
		mongoClient, err := mongoadapter.NewClient(ctx, a.cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
		}
		a.mongoClient = mongoClient
		return mongoadapter.NewCartStore(mongoClient, a.cfg.MongoDB.Database), nil
	case "file":
		return fileadapter.NewCartStore(a.cfg.LocalStore.Dir, a.log)
	default:
		return nil, fmt.Errorf("unknown local store backend %q", a.cfg.LocalStore.Backend)
	}
}

// Sync is the cart reconciliation service for the host to call.
func (a *App) Sync() service.CartSync {
	return a.sync
}

// Session is the auth state for the host to feed tokens into when it does
// not use the NATS auth events.
func (a *App) Session() *session.Manager {
	return a.sessionMgr
}

// View is the cart view state consumed by the host's presentation layer.
func (a *App) View() *service.ViewState {
	return a.view
}

func (a *App) Close() {
	if a.subscriber != nil {
		a.subscriber.Stop()
	}
	if a.natsConn != nil {
		a.natsConn.Close()
		a.log.Info("NATS connection closed")
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Errorf("Error closing Redis client: %v", err)
		} else {
			a.log.Info("Redis client closed successfully")
		}
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(context.Background()); err != nil {
			a.log.Errorf("Error disconnecting from MongoDB: %v", err)
		} else {
			a.log.Info("MongoDB connection closed successfully")
		}
	}
}
