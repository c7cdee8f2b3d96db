package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	MongoDB    MongoDBConfig
	JWT        JWTConfig
	MTN        MTNConfig
	Webhook    WebhookConfig
	Reconciler ReconcilerConfig
	Operators  []models.Operator
	LogLevel   string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// StorageConfig selects the transaction store backend
type StorageConfig struct {
	Driver string // mongodb, postgres or sqlite
	DSN    string // used by the sql drivers
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	UseTransactions bool // requires a replica set
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int // seconds
}

// MTNConfig holds MTN MoMo API-specific configuration
type MTNConfig struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	SubscriptionKey   string
	TargetEnvironment string
	MockAPI           bool
	Timeout           time.Duration
}

// WebhookConfig holds provider callback authentication settings
type WebhookConfig struct {
	Secret     string
	AllowedIPs []string
}

// ReconcilerConfig holds the poller and materializer tuning
type ReconcilerConfig struct {
	StaleAfter       time.Duration
	DefaultBatchSize int
	ProviderTimeout  time.Duration
	ProviderRetries  int
	RetryBackoff     time.Duration
	RunTimeout       time.Duration
	Concurrency      int
	MinorUnitPlaces  int32
	Currency         string
}

// Load loads configuration from a .env file, environment variables and config files.
// path is searched for config.yaml in addition to . and ./config.
func Load(path string) (*Config, error) {
	if !GetEnvAsBool("DOTENV_DISABLED", false) {
		// A missing .env is normal outside local development
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "4000")
	v.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	v.SetDefault("Storage.Driver", "mongodb")
	v.SetDefault("Storage.DSN", "")
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	v.SetDefault("MongoDB.Database", "mtn-votes")
	v.SetDefault("MongoDB.UseTransactions", true)
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("JWT.ExpiresIn", 8*60*60) // 8 hours
	v.SetDefault("MTN.BaseURL", "https://sandbox.momodeveloper.mtn.com")
	v.SetDefault("MTN.APIKey", "")
	v.SetDefault("MTN.APISecret", "")
	v.SetDefault("MTN.SubscriptionKey", "")
	v.SetDefault("MTN.TargetEnvironment", "sandbox")
	v.SetDefault("MTN.MockAPI", false)
	v.SetDefault("MTN.Timeout", "10s")
	v.SetDefault("Webhook.Secret", "")
	v.SetDefault("Webhook.AllowedIPs", []string{})
	v.SetDefault("Reconciler.StaleAfter", "5m")
	v.SetDefault("Reconciler.DefaultBatchSize", 20)
	v.SetDefault("Reconciler.ProviderTimeout", "10s")
	v.SetDefault("Reconciler.ProviderRetries", 2)
	v.SetDefault("Reconciler.RetryBackoff", "250ms")
	v.SetDefault("Reconciler.RunTimeout", "55s")
	v.SetDefault("Reconciler.Concurrency", 4)
	v.SetDefault("Reconciler.MinorUnitPlaces", 2)
	v.SetDefault("Reconciler.Currency", "GHS")
	v.SetDefault("LogLevel", "info")
}

// Validate checks the settings every entry point needs. Provider credentials
// are checked by the provider client itself so that only batch jobs fail on them.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Storage.Driver) {
	case "mongodb", "mongo":
		if c.MongoDB.URI == "" {
			problems = append(problems, "MongoDB.URI is required for the mongodb driver")
		}
		if c.MongoDB.Database == "" {
			problems = append(problems, "MongoDB.Database is required for the mongodb driver")
		}
	case "postgres", "postgresql", "sqlite", "sqlite3":
		if c.Storage.DSN == "" {
			problems = append(problems, "Storage.DSN is required for the "+c.Storage.Driver+" driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("Storage.Driver %q is not supported", c.Storage.Driver))
	}

	if c.MTN.MockAPI && !strings.EqualFold(c.MTN.TargetEnvironment, "sandbox") {
		problems = append(problems, "MTN.MockAPI is only allowed with the sandbox target environment")
	}

	if c.Reconciler.MinorUnitPlaces < 0 || c.Reconciler.MinorUnitPlaces > 4 {
		problems = append(problems, "Reconciler.MinorUnitPlaces must be between 0 and 4")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateServer checks what the HTTP API needs on top of Validate
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWT.Secret == "" {
		return errors.New("invalid configuration: JWT.Secret is required to protect operator endpoints")
	}
	if c.Webhook.Secret == "" && len(c.Webhook.AllowedIPs) == 0 {
		return errors.New("invalid configuration: Webhook.Secret or Webhook.AllowedIPs must be set")
	}
	return nil
}
