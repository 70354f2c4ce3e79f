package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/canteen-orderflow/internal/aws"
	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/config"
	orderevents "github.com/imrishuroy/canteen-orderflow/internal/events"
	"github.com/imrishuroy/canteen-orderflow/internal/lifecycle"
	"github.com/imrishuroy/canteen-orderflow/internal/logger"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "canteen-worker", Env: cfg.AppEnv, Level: cfg.LogLevel})

	clients, err := aws.NewClients(context.Background(), aws.Settings{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint})
	if err != nil {
		log.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	menu := catalog.NewStore(clients.DynamoDB, cfg.CatalogTable)
	notifiers := orderevents.Fanout{aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)}
	if cfg.EventsQueueURL != "" {
		notifiers = append(notifiers, aws.NewPublisher(clients.SQS, cfg.EventsQueueURL))
	}

	mgr := lifecycle.New(lifecycle.Deps{
		Catalog:  menu,
		Orders:   orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.LookupsTable, menu),
		Gateway:  payment.NewHTTPGateway(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, cfg.PaymentTimeout),
		Verifier: payment.NewVerifier(cfg.PaymentKeySecret, cfg.PaymentWebhookSecret, cfg.PaymentSignatureBypass),
		Notifier: notifiers,
		Logger:   log,
		Currency: cfg.Currency,
	})
	p := NewProcessor(mgr, log)

	// RUN_LOCAL feeds a single message from LOCAL_SQS_BODY through the processor.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Error("LOCAL_SQS_BODY is empty")
			os.Exit(1)
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
