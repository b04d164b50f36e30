// Package config loads engine configuration from environment variables and
// an optional YAML file, with defaults matching the operational values the
// engine has always run with.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every engine environment variable, e.g.
// CONJUNCTION_BATCH_SIZE.
const EnvPrefix = "CONJUNCTION"

// Config holds every recognized engine option.
type Config struct {
	// Analysis window and sampling.
	AnalysisWindow time.Duration `mapstructure:"analysis_window"`
	SampleStep     time.Duration `mapstructure:"sample_step"`

	// Batch orchestration.
	BatchSize  int `mapstructure:"batch_size"`
	MaxWorkers int `mapstructure:"max_workers"`

	// Classification thresholds (km).
	EmergencyThresholdKm float64 `mapstructure:"emergency_threshold_km"`
	CriticalThresholdKm  float64 `mapstructure:"critical_threshold_km"`
	HighThresholdKm      float64 `mapstructure:"high_threshold_km"`
	HighRiskThresholdKm  float64 `mapstructure:"high_risk_threshold_km"`

	// Pair selection.
	PriorityCategories []string `mapstructure:"priority_categories"`
	PeriodSimilarity   float64  `mapstructure:"period_similarity"`

	// Continuous loop and task queue.
	AnalysisInterval time.Duration `mapstructure:"analysis_interval"`
	ErrorBackoff     time.Duration `mapstructure:"error_backoff"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RetryCeiling     int           `mapstructure:"retry_ceiling"`

	// Result store sizing and lifetimes.
	CurrentTopN    int           `mapstructure:"current_top_n"`
	HistoricalTopN int           `mapstructure:"historical_top_n"`
	CurrentTTL     time.Duration `mapstructure:"current_ttl"`
	HistoricalTTL  time.Duration `mapstructure:"historical_ttl"`
	AlertTTL       time.Duration `mapstructure:"alert_ttl"`
	ReportTTL      time.Duration `mapstructure:"report_ttl"`
	CatalogTTL     time.Duration `mapstructure:"catalog_ttl"`

	// Process wiring.
	RedisURL    string `mapstructure:"redis_url"`
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the engine's baked-in operational defaults.
func Default() Config {
	return Config{
		AnalysisWindow: 14 * 24 * time.Hour,
		SampleStep:     5 * time.Minute,

		BatchSize:  100,
		MaxWorkers: 4,

		EmergencyThresholdKm: 0.5,
		CriticalThresholdKm:  2.0,
		HighThresholdKm:      5.0,
		HighRiskThresholdKm:  10.0,

		PriorityCategories: []string{"stations", "active", "communications"},
		PeriodSimilarity:   0.10,

		AnalysisInterval: 5 * time.Minute,
		ErrorBackoff:     60 * time.Second,
		PollInterval:     5 * time.Second,
		RetryCeiling:     3,

		CurrentTopN:    100,
		HistoricalTopN: 1000,
		CurrentTTL:     24 * time.Hour,
		HistoricalTTL:  7 * 24 * time.Hour,
		AlertTTL:       3 * 24 * time.Hour,
		ReportTTL:      30 * 24 * time.Hour,
		CatalogTTL:     24 * time.Hour,

		RedisURL:    "redis://localhost:6379",
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
	}
}

// Load reads configuration from the environment (CONJUNCTION_* variables)
// and, when path is non-empty, a YAML file. File values override defaults;
// environment values override both.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("analysis_window", def.AnalysisWindow)
	v.SetDefault("sample_step", def.SampleStep)
	v.SetDefault("batch_size", def.BatchSize)
	v.SetDefault("max_workers", def.MaxWorkers)
	v.SetDefault("emergency_threshold_km", def.EmergencyThresholdKm)
	v.SetDefault("critical_threshold_km", def.CriticalThresholdKm)
	v.SetDefault("high_threshold_km", def.HighThresholdKm)
	v.SetDefault("high_risk_threshold_km", def.HighRiskThresholdKm)
	v.SetDefault("priority_categories", def.PriorityCategories)
	v.SetDefault("period_similarity", def.PeriodSimilarity)
	v.SetDefault("analysis_interval", def.AnalysisInterval)
	v.SetDefault("error_backoff", def.ErrorBackoff)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("retry_ceiling", def.RetryCeiling)
	v.SetDefault("current_top_n", def.CurrentTopN)
	v.SetDefault("historical_top_n", def.HistoricalTopN)
	v.SetDefault("current_ttl", def.CurrentTTL)
	v.SetDefault("historical_ttl", def.HistoricalTTL)
	v.SetDefault("alert_ttl", def.AlertTTL)
	v.SetDefault("report_ttl", def.ReportTTL)
	v.SetDefault("catalog_ttl", def.CatalogTTL)
	v.SetDefault("redis_url", def.RedisURL)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.AnalysisWindow <= 0 {
		return fmt.Errorf("analysis_window must be positive")
	}
	if c.SampleStep <= 0 {
		return fmt.Errorf("sample_step must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive")
	}
	if c.RetryCeiling < 0 {
		return fmt.Errorf("retry_ceiling must be >= 0")
	}
	if !(c.EmergencyThresholdKm < c.CriticalThresholdKm &&
		c.CriticalThresholdKm < c.HighThresholdKm &&
		c.HighThresholdKm < c.HighRiskThresholdKm) {
		return fmt.Errorf("classification thresholds must be strictly increasing")
	}
	return nil
}
