// Package config loads and validates runtime settings at startup.
// Fail-fast: if a required value is missing or malformed, Load returns an
// error and the process exits.
//
// Values are layered: defaults < match-service.yaml < .env < environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the match service.
type Config struct {
	Port        string `mapstructure:"port"`
	GRPCPort    string `mapstructure:"grpc_port"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	Log struct {
		JSON  bool `mapstructure:"json"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"log"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
		GroupID string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`

	Adzuna struct {
		AppID   string `mapstructure:"app_id"`
		AppKey  string `mapstructure:"app_key"`
		Country string `mapstructure:"country"` // e.g. "fr", "gb", "us"
		// What lists the search terms sent to Adzuna on every scrape cycle.
		What  []string `mapstructure:"what"`
		Where []string `mapstructure:"where"`
	} `mapstructure:"adzuna"`

	Schedule struct {
		ScrapeIntervalHours int    `mapstructure:"scrape_interval_hours"`
		MatchIntervalHours  int    `mapstructure:"match_interval_hours"`
		RetentionSpec       string `mapstructure:"retention_spec"` // cron spec, daily by default
	} `mapstructure:"schedule"`

	Corpus struct {
		RetentionDays int      `mapstructure:"retention_days"`
		FetchLimit    int      `mapstructure:"fetch_limit"`
		ExcludeTerms  []string `mapstructure:"exclude_terms"`
	} `mapstructure:"corpus"`

	Matching struct {
		TopN            int     `mapstructure:"top_n"`
		MinPersistScore float64 `mapstructure:"min_persist_score"`
		RoleBoost       float64 `mapstructure:"role_boost"`
		RoleSkillRepeat int     `mapstructure:"role_skill_repeat"`
		Concurrency     int     `mapstructure:"concurrency"`
		MaxDF           float64 `mapstructure:"max_df"`
		MinDF           int     `mapstructure:"min_df"`
		VectorizerPath  string  `mapstructure:"vectorizer_path"`
		VectorizerInDB  bool    `mapstructure:"vectorizer_in_db"`
	} `mapstructure:"matching"`

	Tasks struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"tasks"`
}

// RetentionWindow is the maximum age of a job measured from scrape time.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Corpus.RetentionDays) * 24 * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8083")
	v.SetDefault("grpc_port", "9083")
	v.SetDefault("kafka.topic", "jobs.scraped")
	v.SetDefault("kafka.group_id", "match-service-ingest")
	v.SetDefault("adzuna.country", "fr")
	v.SetDefault("adzuna.what", []string{"software engineer"})
	v.SetDefault("schedule.scrape_interval_hours", 6)
	v.SetDefault("schedule.match_interval_hours", 6)
	v.SetDefault("schedule.retention_spec", "@daily")
	v.SetDefault("corpus.retention_days", 30)
	v.SetDefault("corpus.fetch_limit", 500)
	v.SetDefault("matching.top_n", 50)
	v.SetDefault("matching.min_persist_score", 0.01)
	v.SetDefault("matching.role_boost", 0.1)
	v.SetDefault("matching.role_skill_repeat", 3)
	v.SetDefault("matching.concurrency", 4)
	v.SetDefault("matching.max_df", 0.95)
	v.SetDefault("matching.min_df", 2)
	v.SetDefault("matching.vectorizer_path", "global_tfidf_vectorizer.json")
	v.SetDefault("matching.vectorizer_in_db", true)
	v.SetDefault("tasks.ttl", 24*time.Hour)
}

var envBindings = map[string]string{
	"port":                           "MATCH_PORT",
	"grpc_port":                      "MATCH_GRPC_PORT",
	"database_url":                   "DATABASE_URL",
	"redis_url":                      "REDIS_URL",
	"log.json":                       "LOG_JSON",
	"log.debug":                      "LOG_DEBUG",
	"kafka.brokers":                  "KAFKA_BROKERS",
	"kafka.topic":                    "KAFKA_TOPIC",
	"kafka.group_id":                 "KAFKA_GROUP_ID",
	"adzuna.app_id":                  "ADZUNA_APP_ID",
	"adzuna.app_key":                 "ADZUNA_APP_KEY",
	"adzuna.country":                 "ADZUNA_COUNTRY",
	"adzuna.what":                    "ADZUNA_WHAT",
	"adzuna.where":                   "ADZUNA_WHERE",
	"schedule.scrape_interval_hours": "SCRAPE_INTERVAL_HOURS",
	"schedule.match_interval_hours":  "MATCH_INTERVAL_HOURS",
	"schedule.retention_spec":        "RETENTION_SPEC",
	"corpus.retention_days":          "JOB_POSTING_RETENTION_DAYS",
	"corpus.fetch_limit":             "CORPUS_FETCH_LIMIT",
	"corpus.exclude_terms":           "CORPUS_EXCLUDE_TERMS",
	"matching.top_n":                 "MATCH_TOP_N",
	"matching.min_persist_score":     "MATCH_MIN_PERSIST_SCORE",
	"matching.role_boost":            "MATCH_ROLE_BOOST",
	"matching.role_skill_repeat":     "MATCH_ROLE_SKILL_REPEAT",
	"matching.concurrency":           "MATCH_CONCURRENCY",
	"matching.max_df":                "VECTORIZER_MAX_DF",
	"matching.min_df":                "VECTORIZER_MIN_DF",
	"matching.vectorizer_path":       "VECTORIZER_PATH",
	"matching.vectorizer_in_db":      "VECTORIZER_IN_DB",
	"tasks.ttl":                      "TASK_TTL",
}

// Load reads the optional config file and the environment and returns a
// validated Config. cfgFile may be empty.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] .env not found, using environment only")
	}

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("match-service")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Comma-separated env values arrive as a single element.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Adzuna.What = splitList(cfg.Adzuna.What)
	cfg.Adzuna.Where = splitList(cfg.Adzuna.Where)
	cfg.Corpus.ExcludeTerms = splitList(cfg.Corpus.ExcludeTerms)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and numeric ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Schedule.ScrapeIntervalHours < 1 {
		return fmt.Errorf("SCRAPE_INTERVAL_HOURS must be a positive integer, got %d", c.Schedule.ScrapeIntervalHours)
	}
	if c.Schedule.MatchIntervalHours < 1 {
		return fmt.Errorf("MATCH_INTERVAL_HOURS must be a positive integer, got %d", c.Schedule.MatchIntervalHours)
	}
	if c.Corpus.RetentionDays < 1 {
		return fmt.Errorf("JOB_POSTING_RETENTION_DAYS must be a positive integer, got %d", c.Corpus.RetentionDays)
	}
	if c.Corpus.FetchLimit < 1 {
		return fmt.Errorf("CORPUS_FETCH_LIMIT must be a positive integer, got %d", c.Corpus.FetchLimit)
	}
	if c.Matching.TopN < 1 {
		return fmt.Errorf("MATCH_TOP_N must be a positive integer, got %d", c.Matching.TopN)
	}
	if c.Matching.MinPersistScore < 0 || c.Matching.MinPersistScore >= 1 {
		return fmt.Errorf("MATCH_MIN_PERSIST_SCORE must be in [0,1), got %v", c.Matching.MinPersistScore)
	}
	if c.Matching.RoleBoost < 0 || c.Matching.RoleBoost > 1 {
		return fmt.Errorf("MATCH_ROLE_BOOST must be in [0,1], got %v", c.Matching.RoleBoost)
	}
	if c.Matching.RoleSkillRepeat < 1 {
		return fmt.Errorf("MATCH_ROLE_SKILL_REPEAT must be a positive integer, got %d", c.Matching.RoleSkillRepeat)
	}
	if c.Matching.Concurrency < 1 {
		return fmt.Errorf("MATCH_CONCURRENCY must be a positive integer, got %d", c.Matching.Concurrency)
	}
	if c.Matching.MaxDF <= 0 || c.Matching.MaxDF > 1 {
		return fmt.Errorf("VECTORIZER_MAX_DF must be in (0,1], got %v", c.Matching.MaxDF)
	}
	if c.Matching.MinDF < 1 {
		return fmt.Errorf("VECTORIZER_MIN_DF must be a positive integer, got %d", c.Matching.MinDF)
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
