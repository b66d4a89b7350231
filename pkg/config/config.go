package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	configName = "config"
	configType = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Auth struct {
		JWTSecret string `mapstructure:"JWT_SECRET"`
		Issuer    string `mapstructure:"ISSUER"`
	} `mapstructure:"AUTH"`
	Wallet struct {
		MaxBalancePaise int64  `mapstructure:"MAX_BALANCE_PAISE"`
		Currency        string `mapstructure:"CURRENCY"`
		MaxCASRetries   int    `mapstructure:"MAX_CAS_RETRIES"`
	} `mapstructure:"WALLET"`
	Realtime struct {
		Backend           string        `mapstructure:"BACKEND"` // memory | redis
		Channel           string        `mapstructure:"CHANNEL"`
		KeepaliveInterval time.Duration `mapstructure:"KEEPALIVE_INTERVAL"`
	} `mapstructure:"REALTIME"`
	Notification struct {
		Enabled    bool          `mapstructure:"ENABLED"`
		Queue      string        `mapstructure:"QUEUE"`
		Buffer     int           `mapstructure:"BUFFER"`
		Workers    int           `mapstructure:"WORKERS"`
		GatewayURL string        `mapstructure:"GATEWAY_URL"`
		Timeout    time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"NOTIFICATION"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "cashback-controlplane")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	// the realtime stream is long-lived, so no write deadline by default
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 0)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "Asia/Kolkata")
	v.SetDefault("DATABASE.AUTO_MIGRATE", true)

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("AUTH.ISSUER", "cashback-controlplane")

	v.SetDefault("WALLET.MAX_BALANCE_PAISE", int64(1_000_000_000)) // ₹1 crore
	v.SetDefault("WALLET.CURRENCY", "INR")
	v.SetDefault("WALLET.MAX_CAS_RETRIES", 3)

	v.SetDefault("REALTIME.BACKEND", "memory")
	v.SetDefault("REALTIME.CHANNEL", "realtime:events")
	v.SetDefault("REALTIME.KEEPALIVE_INTERVAL", 25*time.Second)

	v.SetDefault("NOTIFICATION.ENABLED", true)
	v.SetDefault("NOTIFICATION.QUEUE", "notifications")
	v.SetDefault("NOTIFICATION.BUFFER", 256)
	v.SetDefault("NOTIFICATION.WORKERS", 2)
	v.SetDefault("NOTIFICATION.TIMEOUT", 5*time.Second)

	v.SetDefault("MINIO.BUCKET_NAME", "order-proofs")
}

// LoadConfig reads config.yaml from the working directory, overlays environment
// variables and falls back to defaults for anything unset.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		zap.L().Warn("config file not found, using env and defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
