package yaml_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("returns defaults when the file is missing", func(t *testing.T) {
		t.Parallel()

		cfg, err := yaml.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))

		require.NoError(t, err)
		assert.Empty(t, cfg.Path)
		assert.Equal(t, yaml.DefaultConfig().Discovery, cfg.Discovery)
		assert.Equal(t, 0.35, cfg.Matching.Thresholds.For(sigmatch.TargetCompetitor))
	})

	t.Run("merges file values over defaults", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "sigmatch.yaml", `
database:
  path: /var/lib/sigmatch.db
discovery:
  batchPause: 500ms
  failureCeiling: 0
matching:
  thresholds:
    byType:
      topic: 0.45
selection:
  perSourceCap: 4
scrape:
  browser: true
  browserRecycleAfter: 20
`)

		cfg, err := yaml.LoadConfig(path, env(nil))

		require.NoError(t, err)
		assert.Equal(t, path, cfg.Path)
		assert.Equal(t, "/var/lib/sigmatch.db", cfg.Database.Path)
		assert.Equal(t, 500*time.Millisecond, cfg.Discovery.BatchPause)
		assert.Equal(t, 0, cfg.Discovery.FailureCeiling)
		assert.Equal(t, 10, cfg.Discovery.SearchBatchSize)
		assert.Equal(t, 0.45, cfg.Matching.Thresholds.For(sigmatch.TargetTopic))
		assert.Equal(t, 0.35, cfg.Matching.Thresholds.For(sigmatch.TargetCompetitor))
		assert.Equal(t, 4, cfg.Selection.PerSourceCap)
		assert.Equal(t, 50, cfg.Selection.OutputCap)
		assert.True(t, cfg.Scrape.Browser)
		assert.Equal(t, 20, cfg.Scrape.BrowserRecycleAfter)
		assert.Equal(t, 3, cfg.Scrape.BrowserFailureLimit)
	})

	t.Run("applies environment overrides last", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "sigmatch.yaml", "database:\n  path: file.db\nlogLevel: warn\n")

		cfg, err := yaml.LoadConfig(path, env(map[string]string{
			yaml.DatabaseEnv:       "env.db",
			yaml.GeminiAPIKeyEnv:   "gemini-key",
			yaml.SearchAPIKeyEnv:   "search-key",
			yaml.SearchEndpointEnv: "https://search.example/v1",
			yaml.LogLevelEnv:       "debug",
		}))

		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.Database.Path)
		assert.Equal(t, "gemini-key", cfg.Embedding.APIKey)
		assert.Equal(t, "search-key", cfg.Search.APIKey)
		assert.Equal(t, "https://search.example/v1", cfg.Search.Endpoint)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "bad.yaml", "discovery: [unclosed\n")

		_, err := yaml.LoadConfig(path, env(nil))

		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})

	t.Run("rejects unknown target types in thresholds", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "bad.yaml", "matching:\n  thresholds:\n    byType:\n      vendor: 0.3\n")

		_, err := yaml.LoadConfig(path, env(nil))

		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})

	t.Run("rejects an embedding batch above the provider limit", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "bad.yaml", "embedding:\n  batchSize: 500\n")

		_, err := yaml.LoadConfig(path, env(nil))

		require.Error(t, err)
		assert.True(t, strings.Contains(sigmatch.ErrorMessage(err), "batch size"))
	})
}

func TestDecodeSources(t *testing.T) {
	t.Parallel()

	t.Run("applies entry defaults", func(t *testing.T) {
		t.Parallel()

		sources, err := yaml.DecodeSources(strings.NewReader(`
sources:
  - name: TechSite
    url: https://techsite.example/feed
    tier: 1
  - name: Funding news
    method: search_api
    query: "series a funding"
    tier: 2
    active: false
`))

		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, sigmatch.DiscoveryFeed, sources[0].DiscoveryMethod)
		assert.True(t, sources[0].Active)
		assert.Equal(t, sigmatch.DiscoverySearchAPI, sources[1].DiscoveryMethod)
		assert.False(t, sources[1].Active)
	})

	t.Run("rejects an invalid entry", func(t *testing.T) {
		t.Parallel()

		_, err := yaml.DecodeSources(strings.NewReader("sources:\n  - name: NoURL\n"))

		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})

	t.Run("accepts an empty catalog", func(t *testing.T) {
		t.Parallel()

		sources, err := yaml.DecodeSources(strings.NewReader(""))

		require.NoError(t, err)
		assert.Empty(t, sources)
	})
}

func TestLoadTargets(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "targets.yaml", `
targets:
  - organization: org-1
    name: Acme Corp
    type: competitor
    priority: high
    description: Widget maker
  - organization: org-1
    name: Widgets
    type: topic
`)

	targets, err := yaml.LoadTargets(path)

	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, sigmatch.TargetCompetitor, targets[0].TargetType)
	assert.Equal(t, sigmatch.PriorityHigh, targets[0].Priority)
	assert.Equal(t, sigmatch.PriorityMedium, targets[1].Priority)
	assert.True(t, targets[1].IsActive)
}

func TestDecodeTargets_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := yaml.DecodeTargets(strings.NewReader("targets:\n  - organization: o\n    name: n\n    type: vendor\n"))

	assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
}
