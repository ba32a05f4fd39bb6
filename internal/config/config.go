// Package config loads and validates the catalogue's YAML configuration,
// with environment variable overrides and defaults applied in a final
// pass (§ ambient stack).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the ops status/progress server (websocket
// broadcast + health/metrics), not the out-of-scope catalogue read API.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig is optional: when URL is empty, no per-image ingestion
// events are published and the ingest worker does not dial NATS at all.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"`
}

func (n NATSConfig) Enabled() bool { return n.URL != "" }

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig configures the detector/embedder collaborator and the
// clustering distance thresholds (§4.1, §4.2).
type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	MinFaceScore       float64 `yaml:"min_face_score"`
	EdgeMarginPx       int     `yaml:"edge_margin_px"`
	Tau128             float64 `yaml:"tau_128"`
	Tau512             float64 `yaml:"tau_512"`
	FastPathTau512     float64 `yaml:"fast_path_tau_512"`
	IntraOpThreads     int     `yaml:"intra_op_threads"`
	InterOpThreads     int     `yaml:"inter_op_threads"`
}

// IngestConfig configures the directory walker, progress log, and
// adaptive worker pool (§4.7, §4.8).
type IngestConfig struct {
	ImportRoot      string        `yaml:"import_root"`
	ThumbnailDir    string        `yaml:"thumbnail_dir"`
	UploadDir       string        `yaml:"upload_dir"`
	ProgressLogPath string        `yaml:"progress_log_path"`
	MinWorkers      int           `yaml:"min_workers"`
	MaxWorkers      int           `yaml:"max_workers"`
	StartWorkers    int           `yaml:"start_workers"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable
// overrides, then fills in defaults for anything still unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MinFaceScore == 0 {
		cfg.Vision.MinFaceScore = 0.65
	}
	if cfg.Vision.EdgeMarginPx == 0 {
		cfg.Vision.EdgeMarginPx = 10
	}
	if cfg.Vision.Tau128 == 0 {
		cfg.Vision.Tau128 = 0.6
	}
	if cfg.Vision.Tau512 == 0 {
		cfg.Vision.Tau512 = 0.4
	}
	if cfg.Vision.FastPathTau512 == 0 {
		cfg.Vision.FastPathTau512 = 0.45
	}
	if cfg.Vision.IntraOpThreads == 0 {
		cfg.Vision.IntraOpThreads = 1
	}
	if cfg.Vision.InterOpThreads == 0 {
		cfg.Vision.InterOpThreads = 1
	}
	if cfg.Ingest.MinWorkers == 0 {
		cfg.Ingest.MinWorkers = 1
	}
	if cfg.Ingest.MaxWorkers == 0 {
		cfg.Ingest.MaxWorkers = maxWorkersDefault()
	}
	if cfg.Ingest.StartWorkers == 0 {
		cfg.Ingest.StartWorkers = 2
	}
	if cfg.Ingest.SampleInterval == 0 {
		cfg.Ingest.SampleInterval = 10 * time.Second
	}
	if cfg.Ingest.ProgressLogPath == "" {
		cfg.Ingest.ProgressLogPath = "progress.jsonl"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACECAT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACECAT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACECAT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACECAT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACECAT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACECAT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACECAT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACECAT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACECAT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACECAT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACECAT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACECAT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACECAT_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACECAT_IMPORT_ROOT"); v != "" {
		cfg.Ingest.ImportRoot = v
	}
	if v := os.Getenv("FACECAT_THUMBNAIL_DIR"); v != "" {
		cfg.Ingest.ThumbnailDir = v
	}
	if v := os.Getenv("FACECAT_UPLOAD_DIR"); v != "" {
		cfg.Ingest.UploadDir = v
	}
	if v := os.Getenv("FACECAT_PROGRESS_LOG"); v != "" {
		cfg.Ingest.ProgressLogPath = v
	}
	if v := os.Getenv("FACECAT_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxWorkers = n
		}
	}
	if v := os.Getenv("FACECAT_TAU_128"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.Tau128 = f
		}
	}
	if v := os.Getenv("FACECAT_TAU_512"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.Tau512 = f
		}
	}
}
