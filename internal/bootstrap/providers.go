package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/backend"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	apphttp "gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/http"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/logger"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/middleware"
	appredis "gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/redis"
	wsadapter "gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/websocket"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/application"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// SessionAuthMiddlewareFunc is a distinct type so Wire can tell the session
// middleware apart from other func(http.Handler) http.Handler values.
type SessionAuthMiddlewareFunc func(http.Handler) http.Handler

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for
// config initialization before the domain logger exists.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger, err = zap.NewDevelopment()
		if err != nil {
			zapLogger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger, falling back to example: %v\n", err)
		}
	}
	cleanup := func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return zapLogger, cleanup, nil
}

// App aggregates everything Run needs. Wire builds it.
type App struct {
	configProvider        config.Provider
	logger                domain.Logger
	httpServeMux          *http.ServeMux
	httpServer            *http.Server
	redisClient           *redis.Client
	backendClient         *backend.Client
	resourceHandlers      *apphttp.ResourceHandlers
	webhookProxy          *apphttp.WebhookProxy
	runtimeConfigHandler  *apphttp.RuntimeConfigHandler
	wsRouter              *wsadapter.Router
	sessionAuthMiddleware SessionAuthMiddlewareFunc
	channelManager        *wsadapter.ChannelManager
	recalculationService  *application.RecalculationService
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	redisClient *redis.Client,
	backendClient *backend.Client,
	resourceHandlers *apphttp.ResourceHandlers,
	webhookProxy *apphttp.WebhookProxy,
	runtimeConfigHandler *apphttp.RuntimeConfigHandler,
	wsRouter *wsadapter.Router,
	sessionAuthMiddleware SessionAuthMiddlewareFunc,
	channelManager *wsadapter.ChannelManager,
	recalcService *application.RecalculationService,
) (*App, func(), error) {
	app := &App{
		configProvider:        cfgProvider,
		logger:                appLogger,
		httpServeMux:          mux,
		httpServer:            server,
		redisClient:           redisClient,
		backendClient:         backendClient,
		resourceHandlers:      resourceHandlers,
		webhookProxy:          webhookProxy,
		runtimeConfigHandler:  runtimeConfigHandler,
		wsRouter:              wsRouter,
		sessionAuthMiddleware: sessionAuthMiddleware,
		channelManager:        channelManager,
		recalculationService:  recalcService,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.channelManager != nil {
			app.channelManager.Disconnect()
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, zapLogger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, zapLogger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	writeTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second
	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// RedisClientProvider provides a Redis client and a cleanup function.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// TokenCacheStoreProvider provides the Redis-backed session token cache.
func TokenCacheStoreProvider(redisClient *redis.Client, appLogger domain.Logger) domain.TokenCacheStore {
	return appredis.NewTokenCacheAdapter(redisClient, appLogger)
}

// BackendClientProvider provides the Kalko backend REST client.
func BackendClientProvider(cfgProvider config.Provider, appLogger domain.Logger) *backend.Client {
	return backend.NewClient(cfgProvider, appLogger)
}

// TokenValidatorProvider provides the identity provider client as the token validator.
func TokenValidatorProvider(cfgProvider config.Provider, appLogger domain.Logger) application.TokenValidator {
	return backend.NewIdentityClient(cfgProvider, appLogger)
}

// AuthServiceProvider provides the AuthService.
func AuthServiceProvider(appLogger domain.Logger, cfgProvider config.Provider, validator application.TokenValidator, tokenCache domain.TokenCacheStore) *application.AuthService {
	return application.NewAuthService(appLogger, cfgProvider, validator, tokenCache)
}

// HubProvider provides the dashboard connection hub.
func HubProvider(appLogger domain.Logger) *wsadapter.Hub {
	return wsadapter.NewHub(appLogger)
}

// HubNotifierProvider provides the hub-backed notifier.
func HubNotifierProvider(hub *wsadapter.Hub, appLogger domain.Logger) *wsadapter.HubNotifier {
	return wsadapter.NewHubNotifier(hub, appLogger)
}

// ResourceServiceProvider provides the cache-backed resource layer.
func ResourceServiceProvider(appLogger domain.Logger, notifier domain.Notifier, client *backend.Client, cfgProvider config.Provider) *application.ResourceService {
	return application.NewResourceService(appLogger, notifier, client, cfgProvider)
}

// RecipeDataInvalidatorProvider exposes the resource layer's fan-out as the domain port.
func RecipeDataInvalidatorProvider(resources *application.ResourceService) domain.RecipeDataInvalidator {
	return resources.Invalidator()
}

// RecalculationServiceProvider provides the recalculation status aggregate.
func RecalculationServiceProvider(appLogger domain.Logger, notifier domain.Notifier, broadcaster domain.Broadcaster, invalidator domain.RecipeDataInvalidator) *application.RecalculationService {
	return application.NewRecalculationService(appLogger, notifier, broadcaster, invalidator)
}

// SubscriptionServiceProvider provides the feature-gate cache.
func SubscriptionServiceProvider(appLogger domain.Logger, client *backend.Client) *application.SubscriptionService {
	return application.NewSubscriptionService(appLogger, client.FetchFeatures)
}

// ChannelManagerProvider provides the upstream recalculation channel singleton.
func ChannelManagerProvider(appLogger domain.Logger, cfgProvider config.Provider, client *backend.Client) *wsadapter.ChannelManager {
	return wsadapter.NewChannelManager(appLogger, cfgProvider, client.WebsocketURL)
}

// WebsocketHandlerProvider provides the dashboard websocket handler.
func WebsocketHandlerProvider(appLogger domain.Logger, cfgProvider config.Provider, hub *wsadapter.Hub, recalcService *application.RecalculationService) *wsadapter.Handler {
	return wsadapter.NewHandler(appLogger, cfgProvider, hub, recalcService)
}

// WebsocketRouterProvider provides the dashboard websocket router.
func WebsocketRouterProvider(appLogger domain.Logger, cfgProvider config.Provider, wsHandler *wsadapter.Handler) *wsadapter.Router {
	return wsadapter.NewRouter(appLogger, cfgProvider, wsHandler)
}

// ResourceHandlersProvider provides the REST handler set.
func ResourceHandlersProvider(
	appLogger domain.Logger,
	cfgProvider config.Provider,
	resources *application.ResourceService,
	subscriptions *application.SubscriptionService,
	recalcService *application.RecalculationService,
) *apphttp.ResourceHandlers {
	return apphttp.NewResourceHandlers(appLogger, cfgProvider, resources, subscriptions, recalcService)
}

// WebhookProxyProvider provides the payment webhook relay. A relayed billing
// event drops the cached feature set.
func WebhookProxyProvider(appLogger domain.Logger, cfgProvider config.Provider, subscriptions *application.SubscriptionService) *apphttp.WebhookProxy {
	return apphttp.NewWebhookProxy(appLogger, cfgProvider, subscriptions.Invalidate)
}

// RuntimeConfigHandlerProvider provides the runtime config endpoint.
func RuntimeConfigHandlerProvider(appLogger domain.Logger, cfgProvider config.Provider) *apphttp.RuntimeConfigHandler {
	return apphttp.NewRuntimeConfigHandler(appLogger, cfgProvider)
}

// SessionAuthMiddlewareProvider provides the route protection middleware.
func SessionAuthMiddlewareProvider(authService *application.AuthService, cfgProvider config.Provider, appLogger domain.Logger) SessionAuthMiddlewareFunc {
	return middleware.SessionAuthMiddleware(authService, cfgProvider, appLogger)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure adapters
	RedisClientProvider,
	TokenCacheStoreProvider,
	BackendClientProvider,
	TokenValidatorProvider,

	// Dashboard push
	HubProvider,
	HubNotifierProvider,
	wire.Bind(new(domain.Notifier), new(*wsadapter.HubNotifier)),
	wire.Bind(new(domain.Broadcaster), new(*wsadapter.Hub)),

	// Application services
	AuthServiceProvider,
	ResourceServiceProvider,
	RecipeDataInvalidatorProvider,
	RecalculationServiceProvider,
	SubscriptionServiceProvider,
	ChannelManagerProvider,

	// HTTP and WebSocket surface
	WebsocketHandlerProvider,
	WebsocketRouterProvider,
	ResourceHandlersProvider,
	WebhookProxyProvider,
	RuntimeConfigHandlerProvider,
	SessionAuthMiddlewareProvider,

	NewApp,
)
