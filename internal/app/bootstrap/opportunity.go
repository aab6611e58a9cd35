package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
	"github.com/wolfman30/woundcare-opportunities/internal/emr"
	"github.com/wolfman30/woundcare-opportunities/internal/emr/fhir"
	"github.com/wolfman30/woundcare-opportunities/internal/events"
	"github.com/wolfman30/woundcare-opportunities/internal/llm"
	"github.com/wolfman30/woundcare-opportunities/internal/observability/metrics"
	"github.com/wolfman30/woundcare-opportunities/internal/opportunity"
	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
	"github.com/wolfman30/woundcare-opportunities/internal/products"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

// Dependencies are the shared clients a binary has already opened. Any of
// them may be nil, in which case the in-memory or disabled variant is used.
type Dependencies struct {
	AWS     *aws.Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.OpportunityMetrics
}

// Runtime is the wired opportunity engine.
type Runtime struct {
	Service *opportunity.Service
	Rules   *rules.Store
	// Outbox is nil when no database is configured.
	Outbox *events.OutboxStore

	closers []func() error
}

// Close releases clients owned by the runtime.
func (r *Runtime) Close() error {
	var errs []error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService wires the context builder, rule store, enhancer, store and
// cache into an opportunity.Service.
func BuildService(ctx context.Context, cfg *appconfig.Config, deps Dependencies, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	clinical, coverage, err := BuildClinicalProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	builder := patientctx.NewBuilder(clinical, coverage, logger,
		patientctx.WithFetchTimeout(cfg.FetchTimeout),
		patientctx.WithMetrics(deps.Metrics),
	)

	ruleStore, err := BuildRuleStore(ctx, cfg, deps.AWS, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Rules: ruleStore}
	opts := []opportunity.ServiceOption{
		opportunity.WithCache(BuildCache(deps.Redis), cfg.CacheTTL),
		opportunity.WithEnricher(opportunity.NewEnricher(products.DefaultCatalog())),
		opportunity.WithMetrics(deps.Metrics),
	}

	enhancer, closeEnhancer, err := BuildEnhancer(ctx, cfg, deps.AWS, logger)
	if err != nil {
		return nil, err
	}
	if enhancer != nil {
		opts = append(opts, opportunity.WithEnhancer(enhancer))
	}
	if closeEnhancer != nil {
		rt.closers = append(rt.closers, closeEnhancer)
	}

	if deps.Pool != nil {
		rt.Outbox = events.NewOutboxStore(deps.Pool)
		opts = append(opts, opportunity.WithEventRecorder(rt.Outbox))
	}

	rt.Service = opportunity.NewService(
		builder,
		rules.NewEvaluator(ruleStore, logger),
		BuildStore(deps.Pool, logger),
		logger,
		opts...,
	)
	return rt, nil
}

// BuildClinicalProvider returns the FHIR client when a base URL is
// configured. Without one, an empty in-memory provider is used and every
// subject resolves to a minimal snapshot.
func BuildClinicalProvider(cfg *appconfig.Config, logger *logging.Logger) (emr.ClinicalDataProvider, emr.CoverageProvider, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.FHIRBaseURL) == "" {
		logger.Warn("no FHIR base URL configured; using empty in-memory clinical provider")
		mem := emr.NewMemoryProvider()
		return mem, mem, nil
	}

	client, err := fhir.New(fhir.Config{
		BaseURL:      cfg.FHIRBaseURL,
		ClientID:     cfg.FHIRClientID,
		ClientSecret: cfg.FHIRClientSecret,
		Timeout:      cfg.FetchTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: fhir client: %w", err)
	}
	logger.Info("FHIR clinical provider enabled", "base_url", cfg.FHIRBaseURL)
	return client, client, nil
}

// BuildRuleStore picks the catalog source (S3, then file, then the embedded
// default) and performs the initial load.
func BuildRuleStore(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*rules.Store, error) {
	var source rules.Source
	switch {
	case cfg.RuleCatalogS3Bucket != "" && cfg.RuleCatalogS3Key != "":
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: rule catalog in S3 requires AWS config")
		}
		source = rules.S3Source{
			Client: s3.NewFromConfig(*awsCfg),
			Bucket: cfg.RuleCatalogS3Bucket,
			Key:    cfg.RuleCatalogS3Key,
		}
		logger.Info("rule catalog source", "source", "s3", "bucket", cfg.RuleCatalogS3Bucket, "key", cfg.RuleCatalogS3Key)
	case cfg.RuleCatalogPath != "":
		source = rules.FileSource{Path: cfg.RuleCatalogPath}
		logger.Info("rule catalog source", "source", "file", "path", cfg.RuleCatalogPath)
	default:
		source = rules.EmbeddedSource{}
	}

	store := rules.NewStore(source, logger)
	if err := store.Reload(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: load rule catalog: %w", err)
	}
	return store, nil
}

// BuildCache returns a Redis cache when a client is available.
func BuildCache(redisClient *redis.Client) opportunity.Cache {
	if redisClient == nil {
		return opportunity.NewMemoryCache()
	}
	return opportunity.NewRedisCache(redisClient)
}

// BuildStore returns the Postgres store when a pool is available.
func BuildStore(pool *pgxpool.Pool, logger *logging.Logger) opportunity.Store {
	if pool == nil {
		if logger != nil {
			logger.Warn("no database configured; opportunities are kept in memory")
		}
		return opportunity.NewMemoryStore()
	}
	return opportunity.NewPostgresStore(pool)
}

// BuildEnhancer returns the external enhancer, or nil when disabled. Bedrock
// is primary and Gemini the fallback; either may run alone. The returned
// close func is non-nil when a client needs releasing.
func BuildEnhancer(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (opportunity.Enhancer, func() error, error) {
	if !cfg.EnhancementEnabled {
		return nil, nil, nil
	}

	var (
		primary  llm.Client
		fallback llm.Client
		closer   func() error
		model    string
	)
	if awsCfg != nil && cfg.BedrockModelID != "" {
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
		model = cfg.BedrockModelID
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		fallback = gemini
		closer = gemini.Close
	}

	var client llm.Client
	switch {
	case primary != nil && fallback != nil:
		client = llm.NewFallbackClient(primary, fallback, logger)
	case primary != nil:
		client = primary
	case fallback != nil:
		client = fallback
	default:
		logger.Warn("enhancement enabled but no LLM provider configured; continuing without enhancement")
		return nil, nil, nil
	}

	opts := []opportunity.EnhancerOption{opportunity.WithEnhancementTimeout(cfg.EnhancementTimeout)}
	if model != "" {
		opts = append(opts, opportunity.WithEnhancementModel(model))
	}
	logger.Info("external enhancement enabled", "bedrock", primary != nil, "gemini", fallback != nil)
	return opportunity.NewLLMEnhancer(client, opts...), closer, nil
}
