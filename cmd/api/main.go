package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/canteen-orderflow/internal/accounts"
	"github.com/imrishuroy/canteen-orderflow/internal/aws"
	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/config"
	orderevents "github.com/imrishuroy/canteen-orderflow/internal/events"
	"github.com/imrishuroy/canteen-orderflow/internal/handlers"
	"github.com/imrishuroy/canteen-orderflow/internal/idempotency"
	"github.com/imrishuroy/canteen-orderflow/internal/kafka"
	"github.com/imrishuroy/canteen-orderflow/internal/lifecycle"
	"github.com/imrishuroy/canteen-orderflow/internal/logger"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterHealthRoutes(r)
	handlers.RegisterOrdersRoutes(r, cfg)
	handlers.RegisterMenuRoutes(r, cfg)
	handlers.RegisterPaymentRoutes(r, cfg)

	return r
}

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "canteen-api", Env: cfg.AppEnv, Level: cfg.LogLevel})

	clients, err := aws.NewClients(context.Background(), aws.Settings{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint})
	if err != nil {
		log.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	menu := catalog.NewStore(clients.DynamoDB, cfg.CatalogTable)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.LookupsTable, menu)

	notifiers := orderevents.Fanout{aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)}
	if cfg.EventsQueueURL != "" {
		notifiers = append(notifiers, aws.NewPublisher(clients.SQS, cfg.EventsQueueURL))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("failed to start kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		notifiers = append(notifiers, producer)
	}

	verifier := payment.NewVerifier(cfg.PaymentKeySecret, cfg.PaymentWebhookSecret, cfg.PaymentSignatureBypass)
	if verifier.Bypassed() {
		log.Warn("payment signature verification is bypassed", "env", cfg.AppEnv)
	}

	mgr := lifecycle.New(lifecycle.Deps{
		Catalog:        menu,
		Orders:         orderStore,
		Gateway:        payment.NewHTTPGateway(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, cfg.PaymentTimeout),
		Verifier:       verifier,
		Notifier:       notifiers,
		Logger:         log,
		PaymentTimeout: cfg.PaymentTimeout,
		Currency:       cfg.Currency,
	})

	hcfg := handlers.HandlerConfig{
		Orders:            mgr,
		Accounts:          accounts.NewStore(clients.DynamoDB, cfg.AccountsTable),
		Menu:              menu,
		Idempotency:       idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		CheckoutRateLimit: cfg.CheckoutRateLimit,
		Webhooks:          verifier,
		Currency:          cfg.Currency,
		Logger:            log,
	}
	if cfg.WebhookQueueURL != "" {
		hcfg.WebhookRelay = aws.NewPublisher(clients.SQS, cfg.WebhookQueueURL)
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cached := catalog.NewCachedMenu(menu, rdb, cfg.MenuCacheTTL, log)
		hcfg.MenuListing = cached
		hcfg.MenuCache = cached
		hcfg.RateLimiter = rdb
	}

	r := setupRouter(hcfg)

	if cfg.RunLocal {
		runLocal(r, cfg.HTTPAddr, log)
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// runLocal serves HTTP until SIGINT/SIGTERM and then drains in-flight requests.
func runLocal(h http.Handler, addr string, log *slog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("running local server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("local server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
