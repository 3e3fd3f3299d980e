package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/llm"
	"github.com/ZanzyTHEbar/blind-match/internal/ratelimit"
	"github.com/ZanzyTHEbar/blind-match/internal/security"
)

// EnvPrefix prefixes every environment override, e.g. BLINDMATCH_SERVER_PORT.
const EnvPrefix = "BLINDMATCH"

// Config is the service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release or test
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Swagger         bool          `mapstructure:"swagger"`
	// Compression gzips JSON responses at or above CompressMinSize bytes.
	Compression     bool          `mapstructure:"compression"`
	CompressMinSize int           `mapstructure:"compress_min_size"`
	Profiling       bool          `mapstructure:"profiling"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	DataDir         string        `mapstructure:"data_dir"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig bounds the pair-score cache tiers.
type CacheConfig struct {
	MemoryTTL     time.Duration `mapstructure:"memory_ttl"`
	StoreTTL      time.Duration `mapstructure:"store_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Persist       bool          `mapstructure:"persist"`
}

type LLMConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

type ScoringConfig struct {
	Policy      string `mapstructure:"policy"`
	Parallelism int    `mapstructure:"parallelism"`
}

type AdminConfig struct {
	Password     string        `mapstructure:"password"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type RateLimitConfig struct {
	IPPerMinute    int           `mapstructure:"ip_per_minute"`
	ScorePerMinute int           `mapstructure:"score_per_minute"`
	LoginAttempts  int           `mapstructure:"login_attempts"`
	LoginWindow    time.Duration `mapstructure:"login_window"`
	Burst          int           `mapstructure:"burst_multiplier"`
}

type PrivacyConfig struct {
	PhoneSalt string `mapstructure:"phone_salt"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.trusted_proxies", []string{"127.0.0.1", "::1"})
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.swagger", true)
	v.SetDefault("server.compression", true)
	v.SetDefault("server.compress_min_size", 1024)
	v.SetDefault("server.profiling", false)

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.data_dir", "./data")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_queries", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.memory_ttl", 6*time.Hour)
	v.SetDefault("cache.store_ttl", 7*24*time.Hour)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("cache.persist", true)

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", llm.DefaultTimeout)
	v.SetDefault("llm.max_concurrent", llm.DefaultMaxConcurrent)

	v.SetDefault("scoring.policy", "default")
	v.SetDefault("scoring.parallelism", 8)

	v.SetDefault("admin.password", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.token_ttl", 12*time.Hour)

	rl := ratelimit.DefaultConfig()
	v.SetDefault("ratelimit.ip_per_minute", rl.IPLimitPerMin)
	v.SetDefault("ratelimit.score_per_minute", rl.ScoreLimitPerMin)
	v.SetDefault("ratelimit.login_attempts", rl.LoginAttempts)
	v.SetDefault("ratelimit.login_window", rl.LoginWindow)
	v.SetDefault("ratelimit.burst_multiplier", rl.BurstMultiplier)

	v.SetDefault("privacy.phone_salt", "")
	v.SetDefault("log.level", "info")
}

// Load reads defaults, then config.yaml (or the file at path), then .env and
// BLINDMATCH_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigurationError(fmt.Sprintf("failed to read %s", path), err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigurationError("failed to read config.yaml", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigurationError("failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	problems := map[string]string{}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems["server.port"] = "must be between 1 and 65535"
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		problems["server.mode"] = "must be debug, release or test"
	}
	switch c.Database.Driver {
	case database.DriverSQLite:
	case database.DriverPostgres:
		if c.Database.DSN == "" {
			problems["database.dsn"] = "required for postgres"
		}
	default:
		problems["database.driver"] = "must be sqlite or postgres"
	}
	if c.Scoring.Parallelism <= 0 {
		problems["scoring.parallelism"] = "must be positive"
	}
	if c.Cache.MemoryTTL <= 0 {
		problems["cache.memory_ttl"] = "must be positive"
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems["llm.temperature"] = "must be between 0 and 2"
	}
	if len(problems) == 0 {
		return nil
	}

	details := make([]string, 0, len(problems))
	for k, msg := range problems {
		details = append(details, k+" "+msg)
	}
	return errors.NewConfigurationError(strings.Join(details, "; "), nil)
}

// DatabaseConfig maps to the database package.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		DataDir:         c.Database.DataDir,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogQueries:      c.Database.LogQueries,
	}
}

// LLMConfig maps to the llm package.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		BaseURL:       c.LLM.BaseURL,
		APIKey:        c.LLM.APIKey,
		Model:         c.LLM.Model,
		Temperature:   c.LLM.Temperature,
		Timeout:       c.LLM.Timeout,
		MaxConcurrent: c.LLM.MaxConcurrent,
	}
}

// RateLimitConfig maps to the ratelimit package.
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		IPLimitPerMin:    c.RateLimit.IPPerMinute,
		ScoreLimitPerMin: c.RateLimit.ScorePerMinute,
		LoginAttempts:    c.RateLimit.LoginAttempts,
		LoginWindow:      c.RateLimit.LoginWindow,
		BurstMultiplier:  c.RateLimit.Burst,
	}
}

// AuthConfig maps to the security package.
func (c *Config) AuthConfig() security.AuthConfig {
	return security.AuthConfig{
		Password:      c.Admin.Password,
		PasswordHash:  c.Admin.PasswordHash,
		JWTSecret:     c.Admin.JWTSecret,
		TokenTTL:      c.Admin.TokenTTL,
		LoginAttempts: c.RateLimit.LoginAttempts,
		LoginWindow:   c.RateLimit.LoginWindow,
	}
}

// SecurityConfig maps to the security middleware.
func (c *Config) SecurityConfig() security.SecurityConfig {
	sc := security.DefaultSecurityConfig()
	sc.AllowedOrigins = c.Server.AllowedOrigins
	sc.TrustedProxies = c.Server.TrustedProxies
	sc.RequestTimeout = c.Server.RequestTimeout
	return sc
}
