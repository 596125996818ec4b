package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/timmy/cloudnet/internal/domain"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Converter  ConverterConfig  `mapstructure:"converter"`
	PID        PIDConfig        `mapstructure:"pid"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Sites      []domain.Site    `mapstructure:"sites"`
	Models     []domain.Model   `mapstructure:"models"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	MaxUploadMB int64    `mapstructure:"max_upload_mb"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type           string `mapstructure:"type"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	Region         string `mapstructure:"region"`
	RawBucket      string `mapstructure:"raw_bucket"`
	ProductBucket  string `mapstructure:"product_bucket"`
	VolatileBucket string `mapstructure:"volatile_bucket"`
}

type ConverterConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PIDConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ProcessingConfig struct {
	SiteWorkers   int    `mapstructure:"site_workers"`
	TempDir       string `mapstructure:"temp_dir"`
	StagingDir    string `mapstructure:"staging_dir"`
	ImportWorkers int    `mapstructure:"import_workers"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load reads configPath, the environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("converter.base_url", "CONVERTER_URL")
	v.BindEnv("converter.api_key", "CONVERTER_API_KEY")
	v.BindEnv("pid.base_url", "PID_SERVICE_URL")
	v.BindEnv("metrics.pushgateway_url", "PUSHGATEWAY_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5700)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 1024)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/cloudnet.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.raw_bucket", "cloudnet-upload")
	v.SetDefault("storage.product_bucket", "cloudnet-product")
	v.SetDefault("storage.volatile_bucket", "cloudnet-product-volatile")
	v.SetDefault("converter.timeout", 10*time.Minute)
	v.SetDefault("pid.timeout", 30*time.Second)
	v.SetDefault("processing.site_workers", 1)
	v.SetDefault("processing.staging_dir", "./data/staging")
	v.SetDefault("processing.import_workers", 4)
	v.SetDefault("metrics.job", "cloudnet-process")
}
