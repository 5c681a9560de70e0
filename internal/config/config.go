package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseURL is a Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string `yaml:"databaseURL"`

	// DataDir holds attachment blobs when no MinIO endpoint is configured.
	DataDir string `yaml:"dataDir"`

	GeminiAPIKey    string `yaml:"geminiAPIKey"`
	GenerationModel string `yaml:"generationModel"`
	ImageModel      string `yaml:"imageModel"`
	VideoModel      string `yaml:"videoModel"`

	RedisAddr            string `yaml:"redisAddr"`
	RedisPassword        string `yaml:"redisPassword"`
	AIRateLimitPerMinute int    `yaml:"aiRateLimitPerMinute"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	DriveKeyPath        string `yaml:"driveKeyPath"`
	DriveClientEmail    string `yaml:"driveClientEmail"`
	DriveFolderID       string `yaml:"driveFolderID"`
	DriveBackupFileName string `yaml:"driveBackupFileName"`

	AMQPURL string `yaml:"amqpURL"`

	Payers         []string `yaml:"payers"`
	Currency       string   `yaml:"currency"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("AMAN_GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("AMAN_IMAGE_MODEL"); v != "" {
		cfg.ImageModel = v
	}
	if v := os.Getenv("AMAN_VIDEO_MODEL"); v != "" {
		cfg.VideoModel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMAN_AI_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AIRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("AMAN_DRIVE_KEY_PATH"); v != "" {
		cfg.DriveKeyPath = v
	}
	if v := os.Getenv("AMAN_DRIVE_CLIENT_EMAIL"); v != "" {
		cfg.DriveClientEmail = v
	}
	if v := os.Getenv("AMAN_DRIVE_FOLDER_ID"); v != "" {
		cfg.DriveFolderID = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("AMAN_PAYERS"); v != "" {
		cfg.Payers = splitCSV(v)
	}
	if v := os.Getenv("AMAN_CURRENCY"); v != "" {
		cfg.Currency = strings.TrimSpace(v)
	}
	if v := os.Getenv("AMAN_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = "veo-3.0-generate-001"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.DriveBackupFileName == "" {
		cfg.DriveBackupFileName = "gem_backup.json"
	}
	if cfg.AIRateLimitPerMinute == 0 {
		cfg.AIRateLimitPerMinute = 20
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
	}
	if cfg.AIRateLimitPerMinute < 0 {
		return errors.New("config: aiRateLimitPerMinute must be >= 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	if cfg.DriveKeyPath != "" && cfg.DriveClientEmail == "" {
		return errors.New("config: driveClientEmail is required when driveKeyPath is set")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
