package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type EmbeddingConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	TimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/knowledge-api")

	viper.SetEnvPrefix("KNOWLEDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings the pipeline cannot run without. Credential
// problems surface here as a ConfigurationError instead of as a failure on
// the first upstream call.
func (c *Config) Validate() error {
	if c.Embedding.APIKey == "" {
		return &knowledge.ConfigurationError{
			Setting: "embedding.apiKey",
			Reason:  "not configured",
		}
	}
	if !strings.HasPrefix(c.Embedding.APIKey, "sk-") {
		return &knowledge.ConfigurationError{
			Setting: "embedding.apiKey",
			Reason:  `malformed key, expected the "sk-" prefix`,
		}
	}
	if c.Milvus.Endpoint == "" {
		return &knowledge.ConfigurationError{
			Setting: "milvus.endpoint",
			Reason:  "not configured",
		}
	}
	if c.Embedding.Dimensions <= 0 {
		return &knowledge.ConfigurationError{
			Setting: "embedding.dimensions",
			Reason:  "must be positive",
		}
	}
	if c.Embedding.BatchSize <= 0 {
		return &knowledge.ConfigurationError{
			Setting: "embedding.batchSize",
			Reason:  "must be positive",
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 26214400)

	viper.SetDefault("sqlite.path", "./data/knowledge.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "knowledge_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.batchSize", 20)
	viper.SetDefault("embedding.timeoutSec", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
