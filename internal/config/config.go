package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-quant/internal/quant"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Quant       QuantConfig     `mapstructure:"quant"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

// DSN returns DatabaseURL when set, otherwise a key/value connection string.
func (c DatabaseConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TelemetryConfig selects the trace exporter and optional log export.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	LogExport    bool    `mapstructure:"log_export"`
}

type SmootherConfig struct {
	ObservationNoise float64 `mapstructure:"observation_noise"`
	ProcessNoise     float64 `mapstructure:"process_noise"`
}

// QuantConfig drives the scheduled forecast cycle and the engine constants.
type QuantConfig struct {
	Target       string        `mapstructure:"target"`
	Macros       []string      `mapstructure:"macros"`
	LookbackDays int           `mapstructure:"lookback_days"`
	Interval     time.Duration `mapstructure:"interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`

	Smoother         SmootherConfig `mapstructure:"smoother"`
	MinObservations  int            `mapstructure:"min_observations"`
	ZScoreWindow     int            `mapstructure:"zscore_window"`
	TrendWindow      int            `mapstructure:"trend_window"`
	VolatilityWindow int            `mapstructure:"volatility_window"`
	Horizon          int            `mapstructure:"horizon"`
	MacroDamping     float64        `mapstructure:"macro_damping"`
	DragScale        float64        `mapstructure:"drag_scale"`
	SigmaMin         float64        `mapstructure:"sigma_min"`
	SigmaMax         float64        `mapstructure:"sigma_max"`
	SigmaStep        float64        `mapstructure:"sigma_step"`
}

// EngineParams maps the config onto engine constants. Quantile levels are
// fixed at p5..p95.
func (q QuantConfig) EngineParams() quant.Params {
	return quant.Params{
		ObservationNoise: q.Smoother.ObservationNoise,
		ProcessNoise:     q.Smoother.ProcessNoise,
		MinObservations:  q.MinObservations,
		ZScoreWindow:     q.ZScoreWindow,
		TrendWindow:      q.TrendWindow,
		VolatilityWindow: q.VolatilityWindow,
		Horizon:          q.Horizon,
		MacroDamping:     q.MacroDamping,
		DragScale:        q.DragScale,
		SigmaMin:         q.SigmaMin,
		SigmaMax:         q.SigmaMax,
		SigmaStep:        q.SigmaStep,
		Quantiles:        quant.DefaultQuantiles(),
	}
}

// Lookback returns the history window as a duration.
func (q QuantConfig) Lookback() time.Duration {
	return time.Duration(q.LookbackDays) * 24 * time.Hour
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	config.Telemetry.Exporter = strings.ToLower(config.Telemetry.Exporter)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst < 1 {
		return errors.New("server rate limit must be positive")
	}

	switch c.Telemetry.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown telemetry exporter %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be within [0,1], got %v", c.Telemetry.SampleRate)
	}

	q := c.Quant
	if q.Target == "" {
		return errors.New("quant target is required")
	}
	if q.LookbackDays <= 0 {
		return fmt.Errorf("quant lookback_days must be positive, got %d", q.LookbackDays)
	}
	if q.Interval <= 0 {
		return fmt.Errorf("quant interval must be positive, got %s", q.Interval)
	}
	if q.MaxRetries < 1 {
		return fmt.Errorf("quant max_retries must be at least 1, got %d", q.MaxRetries)
	}
	if q.RetryDelay < 0 || q.CycleTimeout <= 0 || q.CacheTTL <= 0 {
		return errors.New("quant retry_delay, cycle_timeout and cache_ttl must be positive")
	}
	return q.EngineParams().Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_rps", 2.0)
	v.SetDefault("server.rate_limit_burst", 5)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "celebrum_quant")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "celebrum-quant")
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.log_export", false)

	// Quant cycle
	v.SetDefault("quant.target", "BTC-USD")
	v.SetDefault("quant.macros", []string{"DX-Y.NYB", "^TNX", "^GSPC"})
	v.SetDefault("quant.lookback_days", 180)
	v.SetDefault("quant.interval", "1h")
	v.SetDefault("quant.max_retries", 3)
	v.SetDefault("quant.retry_delay", "5s")
	v.SetDefault("quant.cycle_timeout", "2m")
	v.SetDefault("quant.cache_ttl", "2h")

	// Engine constants
	p := quant.DefaultParams()
	v.SetDefault("quant.smoother.observation_noise", p.ObservationNoise)
	v.SetDefault("quant.smoother.process_noise", p.ProcessNoise)
	v.SetDefault("quant.min_observations", p.MinObservations)
	v.SetDefault("quant.zscore_window", p.ZScoreWindow)
	v.SetDefault("quant.trend_window", p.TrendWindow)
	v.SetDefault("quant.volatility_window", p.VolatilityWindow)
	v.SetDefault("quant.horizon", p.Horizon)
	v.SetDefault("quant.macro_damping", p.MacroDamping)
	v.SetDefault("quant.drag_scale", p.DragScale)
	v.SetDefault("quant.sigma_min", p.SigmaMin)
	v.SetDefault("quant.sigma_max", p.SigmaMax)
	v.SetDefault("quant.sigma_step", p.SigmaStep)
}
