package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"shopsync/internal/config"
	"shopsync/internal/etl"
	"shopsync/internal/logging"
	"shopsync/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate("CONNECTIONS_TABLE", "KPI_TABLE"); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	handler := etl.NewKPIExport(store.New(awsCfg, cfg.Tables), awsCfg, logger)

	lambda.Start(handler.Handle)
}
