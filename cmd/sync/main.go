package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"shopsync/internal/alert"
	"shopsync/internal/config"
	"shopsync/internal/logging"
	"shopsync/internal/pipeline"
	"shopsync/internal/security"
	"shopsync/internal/shopify"
	"shopsync/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate("CONNECTIONS_TABLE", "ORDERS_TABLE", "KPI_TABLE", "JOBS_TABLE", "SHOPS_TABLE"); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cipher, err := security.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("init cipher: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	st := store.New(awsCfg, cfg.Tables)
	client := shopify.NewClient(cfg.ShopifyAPIVersion, cfg.SyncPageSize, cfg.ShopifyTimeout)

	var alerts pipeline.AlertPublisher
	if cfg.AlertsTopicARN != "" {
		alerts = alert.NewSNSPublisher(awsCfg, cfg.AlertsTopicARN)
	}

	handler := pipeline.NewSync(st, client, cipher, alerts,
		cfg.SyncServiceKey, cfg.SyncPageSize, cfg.SyncMaxPages, logger)

	lambda.Start(handler.Handle)
}
