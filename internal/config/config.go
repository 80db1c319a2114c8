package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Upstream UpstreamConfig
	Secrets  SecretsConfig
	Worker   WorkerConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// GatewayConfig holds the quota policy of the check endpoint.
type GatewayConfig struct {
	DailyLimitFree          int           `mapstructure:"dailyLimitFree"`
	DailyLimitPremium       int           `mapstructure:"dailyLimitPremium"`
	MaxBatchSize            int           `mapstructure:"maxBatchSize"`
	DefaultRateLimitSeconds int           `mapstructure:"defaultRateLimitSeconds"`
	UpstreamConcurrency     int           `mapstructure:"upstreamConcurrency"`
	PremiumUserIDs          []string      `mapstructure:"premiumUserIds"`
	PlanCacheTTL            time.Duration `mapstructure:"planCacheTTL"`
}

type UpstreamConfig struct {
	BaseURL string        `mapstructure:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SecretsConfig struct {
	// TokenKey is a hex encoded 32 byte key used to seal check-token values.
	TokenKey string `mapstructure:"tokenKey"`
}

type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	ResetSchedule     string        `mapstructure:"resetSchedule"`
	LockSweepSchedule string        `mapstructure:"lockSweepSchedule"`
	StaleLockAfter    time.Duration `mapstructure:"staleLockAfter"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 90*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.shutdownPeriod", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialTimeout", 5*time.Second)
	v.SetDefault("redis.readTimeout", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("gateway.dailyLimitFree", 50)
	v.SetDefault("gateway.dailyLimitPremium", 100)
	v.SetDefault("gateway.maxBatchSize", 10)
	v.SetDefault("gateway.defaultRateLimitSeconds", 60)
	v.SetDefault("gateway.upstreamConcurrency", 1)
	v.SetDefault("gateway.premiumUserIds", []string{})
	v.SetDefault("gateway.planCacheTTL", 5*time.Minute)

	v.SetDefault("upstream.baseURL", "https://discord.com")
	v.SetDefault("upstream.timeout", 15*time.Second)

	v.SetDefault("secrets.tokenKey", "")

	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.resetSchedule", "5 0 * * *")
	v.SetDefault("worker.lockSweepSchedule", "@every 1m")
	v.SetDefault("worker.staleLockAfter", 5*time.Minute)

	v.SetDefault("cors.allowOrigins", []string{"*"})
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Gateway.DailyLimitFree <= 0 || c.Gateway.DailyLimitPremium <= 0 {
		return fmt.Errorf("gateway daily limits must be positive")
	}
	if c.Gateway.MaxBatchSize <= 0 {
		return fmt.Errorf("gateway.maxBatchSize must be positive")
	}
	if c.Gateway.UpstreamConcurrency < 1 {
		c.Gateway.UpstreamConcurrency = 1
	}
	if c.Secrets.TokenKey != "" {
		if _, err := c.Secrets.TokenKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

func (s SecretsConfig) TokenKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(s.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("secrets.tokenKey is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secrets.tokenKey must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
