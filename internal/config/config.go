package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Store       StoreConfig       `mapstructure:"store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Token       TokenConfig       `mapstructure:"token"`
	Session     SessionConfig     `mapstructure:"session"`
	Intake      IntakeConfig      `mapstructure:"intake"`
	Assignment  AssignmentConfig  `mapstructure:"assignment"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	OperatorKey    string        `mapstructure:"operator_key"`
	MetricsPrefix  string        `mapstructure:"metrics_prefix"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// StoreConfig selects the persistence driver: "postgres" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TokenConfig struct {
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
	// CodeKey keys the one-time code HMAC. Falls back to Secret.
	CodeKey string `mapstructure:"code_key"`
}

func (t TokenConfig) CodeHashKey() string {
	if t.CodeKey != "" {
		return t.CodeKey
	}
	return t.Secret
}

type SessionConfig struct {
	PendingTTL      time.Duration `mapstructure:"pending_ttl"`
	CodeTTL         time.Duration `mapstructure:"code_ttl"`
	Lifetime        time.Duration `mapstructure:"lifetime"`
	CodeDigits      int           `mapstructure:"code_digits"`
	MaxCodeAttempts int           `mapstructure:"max_code_attempts"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SweepGrace      time.Duration `mapstructure:"sweep_grace"`
}

type IntakeConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

type AssignmentConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	CandidateCacheTTL time.Duration `mapstructure:"candidate_cache_ttl"`
}

type EligibilityConfig struct {
	// CompatibleSubspecialties maps a case disease type to the professional
	// subspecialties that may also take it.
	CompatibleSubspecialties map[string][]string `mapstructure:"compatible_subspecialties"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type WorkerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// envOverrides are read with envconfig under the OPINION_ prefix, so secrets
// never have to live in config.yaml.
type envOverrides struct {
	LogLevel     string `envconfig:"LOG_LEVEL"`
	StoreDriver  string `envconfig:"STORE_DRIVER"`
	OperatorKey  string `envconfig:"OPERATOR_KEY"`
	DBHost       string `envconfig:"DB_HOST"`
	DBPort       int    `envconfig:"DB_PORT"`
	DBUser       string `envconfig:"DB_USER"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	DBName       string `envconfig:"DB_NAME"`
	DBSSLMode    string `envconfig:"DB_SSLMODE"`
	RedisURL     string `envconfig:"REDIS_URL"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	TokenSecret  string `envconfig:"TOKEN_SECRET"`
}

const envPrefix = "OPINION"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.metrics_prefix", "opinion_api")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("token.issuer", "opinion-api")
	v.SetDefault("session.pending_ttl", 10*time.Minute)
	v.SetDefault("session.code_ttl", 5*time.Minute)
	v.SetDefault("session.lifetime", 12*time.Hour)
	v.SetDefault("session.code_digits", 6)
	v.SetDefault("session.max_code_attempts", 5)
	v.SetDefault("session.sweep_interval", 15*time.Minute)
	v.SetDefault("session.sweep_grace", 24*time.Hour)
	v.SetDefault("intake.ttl", 24*time.Hour)
	v.SetDefault("intake.max_payload_bytes", 1<<20)
	v.SetDefault("intake.sweep_interval", 10*time.Minute)
	v.SetDefault("assignment.max_attempts", 3)
	v.SetDefault("assignment.candidate_cache_ttl", 30*time.Second)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads config.yaml from the usual search paths (a missing file is
// fine, defaults apply), then applies OPINION_* environment overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

// LoadFile is LoadConfig for an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	setString(&c.Log.Level, env.LogLevel)
	setString(&c.Store.Driver, env.StoreDriver)
	setString(&c.Server.OperatorKey, env.OperatorKey)
	setString(&c.Database.Host, env.DBHost)
	setInt(&c.Database.Port, env.DBPort)
	setString(&c.Database.User, env.DBUser)
	setString(&c.Database.Password, env.DBPassword)
	setString(&c.Database.Name, env.DBName)
	setString(&c.Database.SSLMode, env.DBSSLMode)
	setString(&c.Redis.URL, env.RedisURL)
	setString(&c.SMTP.Host, env.SMTPHost)
	setInt(&c.SMTP.Port, env.SMTPPort)
	setString(&c.SMTP.Username, env.SMTPUsername)
	setString(&c.SMTP.Password, env.SMTPPassword)
	setString(&c.Token.Secret, env.TokenSecret)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be postgres or memory, got %q", c.Store.Driver))
	}
	if len(c.Token.Secret) < 32 {
		problems = append(problems, "token.secret must be at least 32 characters")
	}
	if c.Assignment.MaxAttempts < 1 {
		problems = append(problems, "assignment.max_attempts must be at least 1")
	}
	if c.Session.CodeTTL > c.Session.PendingTTL {
		problems = append(problems, "session.code_ttl must not exceed session.pending_ttl")
	}
	if c.Session.CodeDigits < 4 || c.Session.CodeDigits > 10 {
		problems = append(problems, "session.code_digits must be between 4 and 10")
	}
	if c.Intake.TTL <= 0 {
		problems = append(problems, "intake.ttl must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}
