package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"order-bridge/internal/alert"
	"order-bridge/internal/bling"
	"order-bridge/internal/catalog"
	"order-bridge/internal/config"
	"order-bridge/internal/handler"
	"order-bridge/internal/idempotency"
	"order-bridge/internal/mercadopago"
	"order-bridge/internal/metrics"
	"order-bridge/internal/middleware"
	"order-bridge/internal/shipping"
	"order-bridge/internal/storefront"
	"order-bridge/internal/token"
	"order-bridge/internal/transport"
	"order-bridge/internal/version"
	"order-bridge/internal/webhook"
)

// app is the assembled server: the HTTP handler plus what must run beside it
// and be released after it.
type app struct {
	handler    http.Handler
	background []func(ctx context.Context)
	closers    []func() error

	// integrations reports what came up, for /health.
	integrations map[string]bool
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires every component from cfg. An integration that cannot start is
// logged and left disabled; its routes answer 503 while the rest serve.
// Only a failure that would make the whole service unusable is returned.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{integrations: map[string]bool{}}
	m := metrics.New()

	for _, w := range cfg.Warnings() {
		logger.Warn("integration disabled", slog.String("reason", w))
	}

	httpClient := transport.NewClient(cfg.OutboundTimeout, transport.Fingerprint(cfg.TLSFingerprint))

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		a.closers = append(a.closers, redisClient.Close)
	}

	// ERP: token manager and order client
	var (
		tokens *token.Manager
		orders *bling.Client
	)
	if cfg.Bling.Enabled() {
		store, err := tokenStore(ctx, cfg, redisClient)
		if err != nil {
			logger.Error("ERP initialization failed, orders disabled", slog.String("error", err.Error()))
		} else {
			tokenURL := cfg.Bling.TokenURL
			if tokenURL == "" {
				tokenURL = bling.TokenURL
			}
			tokens = token.NewManager(token.Config{
				Service:              "Bling",
				ClientID:             cfg.Bling.ClientID,
				ClientSecret:         cfg.Bling.ClientSecret,
				TokenURL:             tokenURL,
				FallbackRefreshToken: cfg.Bling.RefreshToken,
				HTTPClient:           httpClient,
				OnRefresh:            m.TokenRefreshed,
			}, store, logger.With(slog.String("component", "token")))
			orders = bling.NewClient(httpClient, cfg.Bling.BaseURL, tokens, logger.With(slog.String("component", "bling")))

			warmUp(ctx, tokens, logger)
			if cfg.TokenRefreshInterval > 0 {
				a.background = append(a.background, func(ctx context.Context) {
					tokens.Run(ctx, cfg.TokenRefreshInterval)
				})
			}
		}
	}
	a.integrations["bling"] = orders != nil

	// Payments
	var payments *mercadopago.Client
	if cfg.MercadoPago.Enabled() {
		payments = mercadopago.NewClient(httpClient, mercadopago.Config{
			BaseURL:     cfg.MercadoPago.BaseURL,
			AccessToken: cfg.MercadoPago.AccessToken,
			BackURLs: mercadopago.BackURLs{
				Success: cfg.MercadoPago.SuccessURL,
				Pending: cfg.MercadoPago.PendingURL,
				Failure: cfg.MercadoPago.FailureURL,
			},
			NotificationURL:    cfg.MercadoPago.NotificationURL,
			Installments:       cfg.MercadoPago.Installments,
			PixDiscountPercent: cfg.MercadoPago.PixDiscountPercent,
		})
	}
	a.integrations["mercadopago"] = payments != nil

	// Shipping
	var carrier shipping.Carrier
	if cfg.Carrier.Enabled() {
		carrier = shipping.NewMelhorEnvio(httpClient, cfg.Carrier.BaseURL, cfg.Carrier.Token, cfg.Carrier.UserAgent)
	}
	a.integrations["carrier"] = carrier != nil
	quoter := shipping.NewQuoter(carrier, logger.With(slog.String("component", "shipping")), func(k shipping.Kind) {
		m.QuoteServed(string(k))
	})

	deps := storefront.Deps{
		Catalog:   catalog.New(catalog.DefaultProducts()),
		Coupons:   catalog.NewCoupons(catalog.DefaultCoupons()),
		Quoter:    quoter,
		OriginCEP: cfg.OriginCEP,
		OrderDefaults: bling.Defaults{
			CustomerID:  cfg.Bling.CustomerID,
			ProductCode: cfg.Bling.DefaultProductCode,
		},
	}
	// Interface fields stay nil unless the integration is up.
	if payments != nil {
		deps.Payments = payments
	}
	if orders != nil {
		deps.Orders = orders
	}
	shop := storefront.New(deps, logger.With(slog.String("component", "storefront")))

	opts := handler.Options{
		AdminSecret:  cfg.AdminSecret,
		Metrics:      m.Handler(),
		Version:      version.String(),
		Integrations: a.integrations,
	}
	if tokens != nil {
		opts.Tokens = tokens
	}

	// Webhook: needs payments, orders and the dedup set
	if cfg.MercadoPago.WebhookEnabled() && payments != nil && orders != nil {
		dedup, err := dedupStore(ctx, cfg, redisClient)
		if err != nil {
			logger.Error("idempotency store unavailable, webhook disabled", slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, dedup.Close)
			notifier := alertNotifier(cfg, logger, a)
			opts.Webhook = webhook.NewReceiver(webhook.Config{
				Verifier: webhook.NewVerifier(cfg.MercadoPago.WebhookSecret),
				Payments: payments,
				Orders:   orders,
				Dedup:    dedup,
				Alerts:   notifier,
				Defaults: deps.OrderDefaults,
				TTL:      cfg.Storage.IdempotencyTTL,
				Observe: func(o webhook.Outcome) {
					m.WebhookHandled(string(o))
				},
			}, logger.With(slog.String("component", "webhook")))
		}
	}
	a.integrations["webhook"] = opts.Webhook != nil

	h := handler.New(shop, opts, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware.
	// Metrics must wrap the mux directly to see the matched route pattern.
	a.handler = middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.Timeout(cfg.RequestBudget),
		middleware.Metrics(m),
	)(mux)

	return a, nil
}

func tokenStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (token.Store, error) {
	switch cfg.Storage.TokenStore {
	case config.BackendRedis:
		if err := ping(ctx, rdb); err != nil {
			return nil, fmt.Errorf("token store: %w", err)
		}
		return token.NewRedisStore(rdb, cfg.Storage.TokenKey), nil
	case config.BackendFile:
		return token.NewFileStore(cfg.Storage.TokenFile), nil
	default:
		return token.NewMemoryStore(), nil
	}
}

func dedupStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (idempotency.Store, error) {
	switch cfg.Storage.IdempotencyBackend {
	case config.BackendRedis:
		if err := ping(ctx, rdb); err != nil {
			return nil, err
		}
		return idempotency.NewRedisStore(rdb), nil
	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return idempotency.NewPostgresStore(connectCtx, cfg.Storage.DatabaseURL)
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

// alertNotifier always logs; with Kafka configured it also publishes.
func alertNotifier(cfg *config.Config, logger *slog.Logger, a *app) alert.Notifier {
	logNotifier := alert.NewLogNotifier(logger.With(slog.String("component", "alert")))
	if !cfg.Kafka.Enabled() {
		return logNotifier
	}
	kn := alert.NewKafkaNotifier(alert.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic))
	a.closers = append(a.closers, kn.Close)
	return alert.Multi{logNotifier, kn}
}

func ping(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// warmUp loads or refreshes the ERP token so the first order does not pay
// for it. Failure is not fatal: tokens can still be pushed by an operator.
func warmUp(ctx context.Context, tokens *token.Manager, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := tokens.Token(ctx); err != nil {
		logger.Warn("no valid ERP token at startup; push tokens via /admin/push-bling-tokens",
			slog.String("error", err.Error()))
		return
	}
	logger.Info("ERP token ready")
}
