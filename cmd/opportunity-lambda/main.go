package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/wolfman30/woundcare-opportunities/cmd/mainconfig"
	"github.com/wolfman30/woundcare-opportunities/internal/app/bootstrap"
	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
	"github.com/wolfman30/woundcare-opportunities/internal/observability/metrics"
	"github.com/wolfman30/woundcare-opportunities/internal/worker"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

// Lambda entry for the SQS-triggered identification path. Clients are built
// once per execution environment and reused across invocations.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}

	pool, err := bootstrap.BuildPool(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}

	rt, err := bootstrap.BuildService(ctx, cfg, bootstrap.Dependencies{
		AWS:     &awsCfg,
		Pool:    pool,
		Redis:   bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Metrics: metrics.NewOpportunityMetrics(nil),
	}, logger)
	if err != nil {
		panic(err)
	}

	var jobs worker.JobUpdater = worker.NoopJobStore{}
	if cfg.OpportunityJobsTable != "" {
		jobs = worker.NewDynamoJobStore(dynamodb.NewFromConfig(awsCfg), cfg.OpportunityJobsTable, logger)
	}

	handler := worker.NewBatchHandler(rt.Service, jobs, logger,
		worker.WithDefaultFilters(cfg.DefaultMinConfidence, cfg.DefaultResultLimit),
	)
	lambda.Start(handler.HandleSQSEvent)
}
