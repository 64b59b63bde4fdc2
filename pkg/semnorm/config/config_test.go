package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/semnorm/pkg/semnorm/classify"
	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/store/memstore"
	"github.com/cognicore/semnorm/pkg/semnorm/store/sqlite"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 4096, cfg.Embedding.CacheSize)
	assert.Equal(t, uint64(3), cfg.Embedding.MaxRetries)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "mean", cfg.Classifier.Aggregation)
	assert.Equal(t, 0.1, cfg.Classifier.Temperature)
	assert.Equal(t, 0.4, cfg.Classifier.MinConfidence)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
embedding:
  provider: hash
  dimensions: 128
store:
  driver: sqlite
  path: /tmp/dims.db
classifier:
  aggregation: max
log:
  level: debug
  development: true
`)
	t.Setenv("SEMNORM_EMBEDDING_DIMENSIONS", "256")
	t.Setenv("SEMNORM_EMBEDDING_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedding.Dimensions, "environment wins over YAML")
	assert.Equal(t, "secret", cfg.Embedding.APIKey)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/dims.db", cfg.Store.Path)
	assert.Equal(t, "max", cfg.Classifier.Aggregation)
	assert.Equal(t, 0.4, cfg.Classifier.MinConfidence, "absent keys keep their default")
	assert.True(t, cfg.Log.Development)
}

func TestLoadMinConfidence(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", "classifier:\n  min_confidence: 0.25\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Classifier.MinConfidence)

	t.Setenv("SEMNORM_CLASSIFIER_MIN_CONFIDENCE", "0.6")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Classifier.MinConfidence)

	t.Setenv("SEMNORM_CLASSIFIER_MIN_CONFIDENCE", "0")
	_, err = Load("")
	require.Error(t, err, "an explicit zero floor is rejected, not replaced")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"provider":    "embedding:\n  provider: word2vec\n",
		"sqlite path": "store:\n  driver: sqlite\n",
		"driver":      "store:\n  driver: bigquery\n",
		"aggregation": "classifier:\n  aggregation: median\n",
		"confidence":  "classifier:\n  min_confidence: 1.5\n",
		"zero floor":  "classifier:\n  min_confidence: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LogConfig{Level: "loud"})
	require.Error(t, err)
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	comp, err := (&Loader{Config: cfg}).Load(context.Background())
	require.NoError(t, err)
	defer comp.Close()

	assert.IsType(t, &embed.CachedProvider{}, comp.Provider)
	assert.Equal(t, 384, comp.Provider.Dimensions())
	assert.NotEmpty(t, comp.Catalog.TableTypes())
	assert.IsType(t, &memstore.Store{}, comp.Store)
	assert.NotNil(t, comp.FirstNames)
	assert.Nil(t, comp.Metrics)
	assert.Equal(t, classify.AggregateMean, comp.Classifier.Aggregation)
}

func TestLoaderWiresFiles(t *testing.T) {
	catalogPath := writeFile(t, "catalog.yaml", `
version: "t1"
table_types:
  - name: ATTENDANCE
    anchors: ["attendance register"]
concepts:
  - key: student_name
    description: Student full name
    expected_type: string
`)
	namesPath := writeFile(t, "names.yaml", "lists:\n  xx:\n    q: [quentin]\n")

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Catalog.Path = catalogPath
	cfg.Resolver.FirstNamesPath = namesPath
	cfg.Store = StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "dims.db")}
	cfg.Embedding.CacheSize = 0

	comp, err := (&Loader{Config: cfg, Registerer: prometheus.NewRegistry()}).Load(context.Background())
	require.NoError(t, err)
	defer comp.Close()

	assert.Equal(t, "t1", comp.Catalog.Version())
	assert.Equal(t, []string{"quentin"}, comp.FirstNames.Names("xx", "q"))
	assert.IsType(t, &sqlite.Store{}, comp.Store)
	assert.NotNil(t, comp.Metrics)
	assert.Equal(t, "hash-v2-384", comp.Provider.Name())
}

func TestLoaderFailsOnBadCatalog(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Catalog.Path = writeFile(t, "catalog.yaml", "version: x\n")

	_, err = (&Loader{Config: cfg}).Load(context.Background())
	require.Error(t, err)
}

func TestLoaderOpenAIUnavailable(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.BaseURL = "http://127.0.0.1:1"
	cfg.Embedding.MaxRetries = 1

	_, err = (&Loader{Config: cfg}).Load(context.Background())
	require.Error(t, err)
}
