package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the notification service.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Notify    NotifyConfig     `yaml:"notify"`
	SES       SESConfig        `yaml:"ses"`
	Storage   StorageConfig    `yaml:"storage"`
	Redis     RedisConfig      `yaml:"redis"`
	Templates []TemplateConfig `yaml:"templates"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// NotifyConfig holds the delivery pipeline options.
type NotifyConfig struct {
	FromAddress         string `yaml:"from_address"`
	FromName            string `yaml:"from_name"`
	Environment         string `yaml:"environment"`
	ChunkSize           int    `yaml:"chunk_size"`
	InterChunkDelayMs   int    `yaml:"inter_chunk_delay_ms"`
	BatchSizeLimit      int    `yaml:"batch_size_limit"`
	LedgerRetentionDays int    `yaml:"ledger_retention_days"`
}

// InterChunkDelay returns the configured pause between chunks as a duration.
func (c NotifyConfig) InterChunkDelay() time.Duration {
	return time.Duration(c.InterChunkDelayMs) * time.Millisecond
}

// LedgerRetention returns the ledger retention horizon as a duration.
func (c NotifyConfig) LedgerRetention() time.Duration {
	return time.Duration(c.LedgerRetentionDays) * 24 * time.Hour
}

// SESConfig holds AWS SES API configuration.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	// NativeTemplates sends the template name and variables to SES for
	// server-side rendering instead of the locally rendered bodies.
	// Requires the templates to exist in SES under the same names.
	NativeTemplates bool `yaml:"native_templates"`
}

// Timeout returns the configured timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig selects and configures the ledger/suppression store.
type StorageConfig struct {
	Type          string `yaml:"type"` // "dynamodb", "postgres", or "memory"
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	DatabaseURL   string `yaml:"database_url"`
	S3Bucket      string `yaml:"s3_bucket"` // Optional audit archive bucket
}

// GetAWSProfile returns the AWS profile, with environment variable override.
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the optional Redis rate-guard configuration.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TemplateConfig is one pre-registered delivery template.
type TemplateConfig struct {
	Name    string `yaml:"name"`
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Notify.Environment == "" {
		cfg.Notify.Environment = "development"
	}
	if cfg.Notify.ChunkSize == 0 {
		cfg.Notify.ChunkSize = 10
	}
	if cfg.Notify.InterChunkDelayMs == 0 {
		cfg.Notify.InterChunkDelayMs = 100
	}
	if cfg.Notify.BatchSizeLimit == 0 {
		cfg.Notify.BatchSizeLimit = 50
	}
	if cfg.Notify.LedgerRetentionDays == 0 {
		cfg.Notify.LedgerRetentionDays = 90
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = cfg.SES.Region
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v := os.Getenv("SES_CONFIGURATION_SET"); v != "" {
		cfg.SES.ConfigurationSet = v
	}
	if os.Getenv("SES_NATIVE_TEMPLATES") == "true" {
		cfg.SES.NativeTemplates = true
	}
	if v := os.Getenv("NOTIFY_FROM_ADDRESS"); v != "" {
		cfg.Notify.FromAddress = v
	}
	if v := os.Getenv("NOTIFY_FROM_NAME"); v != "" {
		cfg.Notify.FromName = v
	}
	if v := os.Getenv("NOTIFY_ENVIRONMENT"); v != "" {
		cfg.Notify.Environment = v
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Storage.DatabaseURL = dbURL
		cfg.Storage.Type = "postgres"
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Storage.DynamoDBTable = v
		cfg.Storage.Type = "dynamodb"
	}
	if v := os.Getenv("AUDIT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	return cfg, nil
}
