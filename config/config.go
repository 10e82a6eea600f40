package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	ServiceBus    ServiceBusConfig
	Elasticsearch ElasticsearchConfig
	NewRelic      NewRelicConfig
	Signer        SignerConfig
	Renderer      RendererConfig
	FileStore     FileStoreConfig
	Logging       LoggingConfig
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string // debug, release, test
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Debug    bool
	MaxConn  int
	MaxIdle  int
	MaxLife  time.Duration
}

// RedisConfig holds the Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// ServiceBusConfig holds the Azure Service Bus configuration
type ServiceBusConfig struct {
	ConnectionString string
	EventsQueue      string
	Prefix           string
}

// ElasticsearchConfig holds the Elasticsearch configuration
type ElasticsearchConfig struct {
	Enabled  bool
	URLs     []string
	Username string
	Password string
	Index    string
}

// NewRelicConfig holds the New Relic configuration
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// SignerConfig holds the external e-signature provider configuration
type SignerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RendererConfig holds the document render service configuration
type RendererConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FileStoreConfig holds the blob store configuration
type FileStoreConfig struct {
	Root string
}

// LoggingConfig holds the logging configuration
type LoggingConfig struct {
	Level string
	JSON  bool
}

// Load loads the configuration from the config file and environment.
// Environment variables use the PPE_ prefix and override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PPE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; environment variables and defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error loading configuration: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Mode:            v.GetString("server.mode"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Name:     v.GetString("database.name"),
			SSLMode:  v.GetString("database.ssl_mode"),
			Debug:    v.GetBool("database.debug"),
			MaxConn:  v.GetInt("database.max_conn"),
			MaxIdle:  v.GetInt("database.max_idle"),
			MaxLife:  v.GetDuration("database.max_life"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		ServiceBus: ServiceBusConfig{
			ConnectionString: v.GetString("servicebus.connection_string"),
			EventsQueue:      v.GetString("servicebus.events_queue"),
			Prefix:           v.GetString("servicebus.prefix"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  v.GetBool("elasticsearch.enabled"),
			URLs:     v.GetStringSlice("elasticsearch.urls"),
			Username: v.GetString("elasticsearch.username"),
			Password: v.GetString("elasticsearch.password"),
			Index:    v.GetString("elasticsearch.index"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("newrelic.app_name"),
			LicenseKey: v.GetString("newrelic.license_key"),
			Enabled:    v.GetBool("newrelic.enabled"),
		},
		Signer: SignerConfig{
			BaseURL: v.GetString("signer.base_url"),
			APIKey:  v.GetString("signer.api_key"),
			Timeout: v.GetDuration("signer.timeout"),
		},
		Renderer: RendererConfig{
			BaseURL: v.GetString("renderer.base_url"),
			Timeout: v.GetDuration("renderer.timeout"),
		},
		FileStore: FileStoreConfig{
			Root: v.GetString("filestore.root"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("logging.level"),
			JSON:  v.GetBool("logging.json"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "ppe_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conn", 20)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.max_life", "30m")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("servicebus.events_queue", "ppe-events")

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.urls", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.index", "ppe-deliveries")

	v.SetDefault("newrelic.app_name", "PPE Issuance Service")
	v.SetDefault("newrelic.enabled", false)

	v.SetDefault("signer.timeout", "30s")
	v.SetDefault("renderer.timeout", "30s")
	v.SetDefault("filestore.root", "./data/files")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)
}
