// Package config loads amankb configuration from defaults, YAML files,
// a .env file and AMANKB_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amankb/internal/logging"
)

// ProjectConfigName is the per-deployment config file looked up by Load.
const ProjectConfigName = ".amankb.yaml"

// Config is the root configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	Worker      WorkerConfig      `yaml:"worker" json:"worker"`
	Chunk       ChunkConfig       `yaml:"chunk" json:"chunk"`
	Extract     ExtractConfig     `yaml:"extract" json:"extract"`
	TextIndex   TextIndexConfig   `yaml:"text_index" json:"text_index"`
	VectorIndex VectorIndexConfig `yaml:"vector_index" json:"vector_index"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Inbox       InboxConfig       `yaml:"inbox" json:"inbox"`
	Logging     logging.Config    `yaml:"logging" json:"logging"`
}

// StorageConfig locates uploaded files.
type StorageConfig struct {
	// Root is the base directory every File.StoragePath is resolved against.
	Root string `yaml:"root" json:"root"`
}

// DatabaseConfig locates the metadata store.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// WorkerConfig controls the parse scheduler.
type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// LeaseBackend is "file" (flock) or "sql" (leases table).
	LeaseBackend string `yaml:"lease_backend" json:"lease_backend"`
	// LeaseTTL bounds how long a tick may hold the scheduler lease.
	LeaseTTL time.Duration `yaml:"lease_ttl" json:"lease_ttl"`
	// JobLease bounds how long a RUNNING job may go without a checkpoint
	// before it is requeued.
	JobLease time.Duration `yaml:"job_lease" json:"job_lease"`
}

// ChunkConfig sizes the byte windows.
type ChunkConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// ExtractConfig bounds text extraction.
type ExtractConfig struct {
	MaxChars      int `yaml:"max_chars" json:"max_chars"`
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// TextIndexConfig selects and configures the text search backend.
type TextIndexConfig struct {
	// Backend is "opensearch" or "bleve".
	Backend    string        `yaml:"backend" json:"backend"`
	URL        string        `yaml:"url" json:"url"`
	Index      string        `yaml:"index" json:"index"`
	Username   string        `yaml:"username" json:"username"`
	Password   string        `yaml:"password" json:"-"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	// BleveDir holds local indexes. Empty keeps them in memory.
	BleveDir string `yaml:"bleve_dir" json:"bleve_dir"`
}

// VectorIndexConfig configures the remote embedding/vector service.
type VectorIndexConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	ReindexPath string        `yaml:"reindex_path" json:"reindex_path"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	MaxChunks   int           `yaml:"max_chunks" json:"max_chunks"`
	MaxChars    int           `yaml:"max_chars" json:"max_chars"`
	// Strategy is FAIL or TRUNCATE.
	Strategy    string `yaml:"strategy" json:"strategy"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// InboxConfig configures the drop-folder watcher.
type InboxConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Dir      string        `yaml:"dir" json:"dir"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	home := defaultHome()
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root: filepath.Join(home, "files"),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(home, "amankb.db"),
		},
		Worker: WorkerConfig{
			PollInterval: 5 * time.Second,
			LeaseBackend: "file",
			LeaseTTL:     30 * time.Second,
			JobLease:     15 * time.Minute,
		},
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 120,
		},
		Extract: ExtractConfig{
			MaxChars:      2_000_000,
			MaxFileSizeMB: 50,
		},
		TextIndex: TextIndexConfig{
			Backend:    "opensearch",
			URL:        "http://localhost:9200",
			Index:      "kb_chunk",
			BatchSize:  500,
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		VectorIndex: VectorIndexConfig{
			Enabled:     true,
			BaseURL:     "http://localhost:8000",
			ReindexPath: "/kb/vector/reindexFile",
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			MaxChunks:   300,
			MaxChars:    300_000,
			Strategy:    "TRUNCATE",
			Concurrency: 1,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8088",
		},
		Inbox: InboxConfig{
			Dir:      filepath.Join(home, "inbox"),
			Debounce: 500 * time.Millisecond,
		},
		Logging: logging.DefaultConfig(),
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amankb")
	}
	return filepath.Join(home, ".amankb")
}

// GetUserConfigPath returns the user/global configuration file:
// $XDG_CONFIG_HOME/amankb/config.yaml or ~/.config/amankb/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amankb", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amankb", "config.yaml")
	}
	return filepath.Join(home, ".config", "amankb", "config.yaml")
}

// Load loads configuration for dir, in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/amankb/config.yaml)
//  3. Project config (.amankb.yaml in dir)
//  4. dir/.env (never overrides variables already set)
//  5. AMANKB_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(dir, ".env"); fileExists(path) {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
// Booleans can only be switched on from a file; use env vars to switch off.
func (c *Config) mergeWith(o *Config) {
	if o.Version != 0 {
		c.Version = o.Version
	}
	setString(&c.Storage.Root, o.Storage.Root)
	setString(&c.Database.Path, o.Database.Path)

	setDuration(&c.Worker.PollInterval, o.Worker.PollInterval)
	setString(&c.Worker.LeaseBackend, o.Worker.LeaseBackend)
	setDuration(&c.Worker.LeaseTTL, o.Worker.LeaseTTL)
	setDuration(&c.Worker.JobLease, o.Worker.JobLease)

	setInt(&c.Chunk.Size, o.Chunk.Size)
	setInt(&c.Chunk.Overlap, o.Chunk.Overlap)

	setInt(&c.Extract.MaxChars, o.Extract.MaxChars)
	setInt(&c.Extract.MaxFileSizeMB, o.Extract.MaxFileSizeMB)

	t := o.TextIndex
	setString(&c.TextIndex.Backend, t.Backend)
	setString(&c.TextIndex.URL, t.URL)
	setString(&c.TextIndex.Index, t.Index)
	setString(&c.TextIndex.Username, t.Username)
	setString(&c.TextIndex.Password, t.Password)
	setInt(&c.TextIndex.BatchSize, t.BatchSize)
	setDuration(&c.TextIndex.Timeout, t.Timeout)
	setInt(&c.TextIndex.MaxRetries, t.MaxRetries)
	setString(&c.TextIndex.BleveDir, t.BleveDir)

	v := o.VectorIndex
	if v.Enabled {
		c.VectorIndex.Enabled = true
	}
	setString(&c.VectorIndex.BaseURL, v.BaseURL)
	setString(&c.VectorIndex.ReindexPath, v.ReindexPath)
	setDuration(&c.VectorIndex.Timeout, v.Timeout)
	setInt(&c.VectorIndex.MaxRetries, v.MaxRetries)
	setInt(&c.VectorIndex.MaxChunks, v.MaxChunks)
	setInt(&c.VectorIndex.MaxChars, v.MaxChars)
	setString(&c.VectorIndex.Strategy, v.Strategy)
	setInt(&c.VectorIndex.Concurrency, v.Concurrency)

	setString(&c.Server.Addr, o.Server.Addr)

	if o.Inbox.Enabled {
		c.Inbox.Enabled = true
	}
	setString(&c.Inbox.Dir, o.Inbox.Dir)
	setDuration(&c.Inbox.Debounce, o.Inbox.Debounce)

	setString(&c.Logging.Level, o.Logging.Level)
	setString(&c.Logging.FilePath, o.Logging.FilePath)
	setInt(&c.Logging.MaxSizeMB, o.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, o.Logging.MaxFiles)
}

// applyEnvOverrides applies AMANKB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	envString("AMANKB_STORAGE_ROOT", &c.Storage.Root)
	envString("AMANKB_DB_PATH", &c.Database.Path)
	envDuration("AMANKB_POLL_INTERVAL", &c.Worker.PollInterval)
	envString("AMANKB_LEASE_BACKEND", &c.Worker.LeaseBackend)
	envDuration("AMANKB_JOB_LEASE", &c.Worker.JobLease)

	envString("AMANKB_TEXT_BACKEND", &c.TextIndex.Backend)
	envString("AMANKB_TEXT_URL", &c.TextIndex.URL)
	envString("AMANKB_TEXT_INDEX", &c.TextIndex.Index)
	envString("AMANKB_TEXT_USERNAME", &c.TextIndex.Username)
	envString("AMANKB_TEXT_PASSWORD", &c.TextIndex.Password)
	envDuration("AMANKB_TEXT_TIMEOUT", &c.TextIndex.Timeout)
	envString("AMANKB_TEXT_BLEVE_DIR", &c.TextIndex.BleveDir)

	envBool("AMANKB_VECTOR_ENABLED", &c.VectorIndex.Enabled)
	envString("AMANKB_VECTOR_URL", &c.VectorIndex.BaseURL)
	envDuration("AMANKB_VECTOR_TIMEOUT", &c.VectorIndex.Timeout)
	envInt("AMANKB_VECTOR_MAX_CHUNKS", &c.VectorIndex.MaxChunks)
	envInt("AMANKB_VECTOR_MAX_CHARS", &c.VectorIndex.MaxChars)
	envString("AMANKB_VECTOR_STRATEGY", &c.VectorIndex.Strategy)

	envString("AMANKB_SERVER_ADDR", &c.Server.Addr)
	envBool("AMANKB_INBOX_ENABLED", &c.Inbox.Enabled)
	envString("AMANKB_LOG_LEVEL", &c.Logging.Level)
	envString("AMANKB_LOG_FILE", &c.Logging.FilePath)
	envBool("AMANKB_LOG_STDERR", &c.Logging.WriteToStderr)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("storage.root must be set")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive, got %s", c.Worker.PollInterval)
	}
	switch strings.ToLower(c.Worker.LeaseBackend) {
	case "file", "sql":
	default:
		return fmt.Errorf("worker.lease_backend must be 'file' or 'sql', got %s", c.Worker.LeaseBackend)
	}
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap)
	}
	switch strings.ToLower(c.TextIndex.Backend) {
	case "opensearch", "bleve":
	default:
		return fmt.Errorf("text_index.backend must be 'opensearch' or 'bleve', got %s", c.TextIndex.Backend)
	}
	if c.TextIndex.BatchSize <= 0 {
		return fmt.Errorf("text_index.batch_size must be positive, got %d", c.TextIndex.BatchSize)
	}
	switch strings.ToUpper(c.VectorIndex.Strategy) {
	case "FAIL", "TRUNCATE":
	default:
		return fmt.Errorf("vector_index.strategy must be 'FAIL' or 'TRUNCATE', got %s", c.VectorIndex.Strategy)
	}
	if c.VectorIndex.MaxChunks <= 0 || c.VectorIndex.MaxChars <= 0 {
		return fmt.Errorf("vector_index.max_chunks and max_chars must be positive")
	}
	if c.VectorIndex.Concurrency < 1 {
		return fmt.Errorf("vector_index.concurrency must be at least 1, got %d", c.VectorIndex.Concurrency)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
