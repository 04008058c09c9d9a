package testsupport

import (
	"path/filepath"
	"testing"

	"harvest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StoreDir = filepath.Join(base, "store")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.Hostname = "testhost"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSource registers a source on the test config.
func WithSource(name string, source config.Source) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Sources == nil {
			b.cfg.Sources = make(map[string]config.Source)
		}
		b.cfg.Sources[name] = source
	}
}

// WithEmbeddingBase points the embedding client at a test server.
func WithEmbeddingBase(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Embedding.BaseURL = baseURL
	}
}

// WithAPIToken sets the API bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StoreDir)
}
