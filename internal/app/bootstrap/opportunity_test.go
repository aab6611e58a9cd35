package bootstrap

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
	"github.com/wolfman30/woundcare-opportunities/internal/emr"
	"github.com/wolfman30/woundcare-opportunities/internal/emr/fhir"
	"github.com/wolfman30/woundcare-opportunities/internal/opportunity"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", "text", io.Discard)
}

func TestBuildServiceRequiresConfig(t *testing.T) {
	if _, err := BuildService(context.Background(), nil, Dependencies{}, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildServiceInMemory(t *testing.T) {
	cfg := &appconfig.Config{CacheTTL: time.Minute, FetchTimeout: time.Second}

	rt, err := BuildService(context.Background(), cfg, Dependencies{}, quietLogger())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Outbox)
	assert.NotEmpty(t, rt.Rules.Version())

	result := rt.Service.IdentifyOpportunities(context.Background(), "p-unknown", opportunity.IdentifyOptions{})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "p-unknown", result.SubjectID)
	assert.Empty(t, result.Opportunities)
}

func TestBuildClinicalProvider(t *testing.T) {
	clinical, coverage, err := BuildClinicalProvider(&appconfig.Config{}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &emr.MemoryProvider{}, clinical)
	assert.IsType(t, &emr.MemoryProvider{}, coverage)

	clinical, _, err = BuildClinicalProvider(&appconfig.Config{FHIRBaseURL: "https://fhir.example.com"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &fhir.Client{}, clinical)

	_, _, err = BuildClinicalProvider(&appconfig.Config{FHIRBaseURL: "https://fhir.example.com", FHIRClientID: "id"}, quietLogger())
	assert.Error(t, err)
}

func TestBuildRuleStoreSources(t *testing.T) {
	ctx := context.Background()

	store, err := BuildRuleStore(ctx, &appconfig.Config{}, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "2025.06.1", store.Version())

	path := filepath.Join(t.TempDir(), "rules.yaml")
	catalog := `version: "local-1"
rules:
  - id: local-rule
    version: "1"
    category: wound_care
    type: infection_management
    title: Local rule
    priority: 5
    conditions:
      - type: risk_threshold
        metric: infection_risk
        threshold: 0.5
    actions:
      - type: schedule_assessment
        description: Schedule an assessment
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))
	store, err = BuildRuleStore(ctx, &appconfig.Config{RuleCatalogPath: path}, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "local-1", store.Version())

	_, err = BuildRuleStore(ctx, &appconfig.Config{RuleCatalogS3Bucket: "b", RuleCatalogS3Key: "k"}, nil, quietLogger())
	assert.Error(t, err)

	_, err = BuildRuleStore(ctx, &appconfig.Config{RuleCatalogPath: filepath.Join(t.TempDir(), "missing.yaml")}, nil, quietLogger())
	assert.Error(t, err)
}

func TestBuildCacheAndStore(t *testing.T) {
	assert.IsType(t, &opportunity.MemoryCache{}, BuildCache(nil))
	assert.IsType(t, &opportunity.MemoryStore{}, BuildStore(nil, quietLogger()))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), true)
	require.NotNil(t, client)
	defer client.Close()
	assert.IsType(t, &opportunity.RedisCache{}, BuildCache(client))

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, quietLogger(), false))
}

func TestBuildEnhancer(t *testing.T) {
	enhancer, closer, err := BuildEnhancer(context.Background(), &appconfig.Config{}, nil, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, enhancer)
	assert.Nil(t, closer)

	enhancer, _, err = BuildEnhancer(context.Background(), &appconfig.Config{EnhancementEnabled: true}, nil, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, enhancer, "no provider configured")
}

func TestBuildPoolDisabled(t *testing.T) {
	pool, err := BuildPool(context.Background(), &appconfig.Config{}, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, pool)
}
