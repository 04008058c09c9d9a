package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	// StoreDir is the root of the shared durable store all machines mount.
	StoreDir string `toml:"store_dir"`
	// DataDir holds this machine's local databases (queue.db, library.db).
	DataDir  string `toml:"data_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
	// Hostname overrides os.Hostname for log routing and job leases.
	Hostname string `toml:"hostname"`
}

// Source configures one content source's producer run.
type Source struct {
	Enabled bool `toml:"enabled"`
	// MinRequestIntervalMS is the politeness floor between outbound requests
	// to this source. Enforced per source, not globally.
	MinRequestIntervalMS int               `toml:"min_request_interval_ms"`
	BaseURL              string            `toml:"base_url"`
	Collection           string            `toml:"collection"`
	Options              map[string]string `toml:"options"`
}

// Transcription configures the whisper CLI invocation.
type Transcription struct {
	Binary         string `toml:"binary"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Embedding configures the embedding backend.
type Embedding struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Dimension      int    `toml:"dimension"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Processing configures text chunking.
type Processing struct {
	ChunkTargetSize int `toml:"chunk_target_size"`
	ChunkMaxSize    int `toml:"chunk_max_size"`
	ChunkMinSize    int `toml:"chunk_min_size"`
	ChunkOverlap    int `toml:"chunk_overlap"`
}

// Indexing configures index queue batch processing.
type Indexing struct {
	BatchSize             int `toml:"batch_size"`
	ExtractTimeoutSeconds int `toml:"extract_timeout_seconds"`
}

// Workflow contains daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	SweepInterval      int `toml:"sweep_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	RetryBudget        int `toml:"retry_budget"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Queue          bool   `toml:"queue"`
	Import         bool   `toml:"import"`
	Errors         bool   `toml:"errors"`
}

// Metrics controls the prometheus endpoint on the daemon mux.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Machine describes a worker machine the cluster monitor probes.
type Machine struct {
	Name                string `toml:"name"`
	URL                 string `toml:"url"`
	Token               string `toml:"token"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
}

// Config encapsulates all configuration values for harvest.
//
// Configuration sections by subsystem:
//   - Paths: shared store root, local data dir, API bind address
//   - Sources: per-source producer settings keyed by source name
//   - Transcription: whisper invocation settings
//   - Embedding: embedding backend connection settings
//   - Processing: chunking parameters
//   - Indexing: index queue batch settings
//   - Workflow: daemon polling intervals and timeouts
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
//   - Machines: cluster monitor probe targets
type Config struct {
	Paths         Paths             `toml:"paths"`
	Sources       map[string]Source `toml:"sources"`
	Transcription Transcription     `toml:"transcription"`
	Embedding     Embedding         `toml:"embedding"`
	Processing    Processing        `toml:"processing"`
	Indexing      Indexing          `toml:"indexing"`
	Workflow      Workflow          `toml:"workflow"`
	Logging       Logging           `toml:"logging"`
	Notifications Notifications     `toml:"notifications"`
	Metrics       Metrics           `toml:"metrics"`
	Machines      []Machine         `toml:"machines"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/harvest/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("harvest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// Host returns the effective machine name used for log routing and job leases.
func (c *Config) Host() string {
	if name := strings.TrimSpace(c.Paths.Hostname); name != "" {
		return name
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "unknown"
}

// HostLogDir returns this machine's log directory on the shared store.
func (c *Config) HostLogDir() string {
	if strings.TrimSpace(c.Paths.StoreDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.StoreDir, "logs", c.Host())
}

// EnsureDirectories creates required directories for daemon operation. The
// shared store directories are created on a best-effort basis so the daemon
// can start while network storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.DataDir, err)
	}
	if strings.TrimSpace(c.Paths.StoreDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.StoreDir, 0o755)
		_ = os.MkdirAll(c.HostLogDir(), 0o755)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
