package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Output            string `mapstructure:"output"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Ingest  string `mapstructure:"ingest"`
}

// TelegramConfig configures the bot getUpdates source. Token is usually
// provided via HUB_TELEGRAM_TOKEN rather than the yaml file.
type TelegramConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PollTimeout int           `mapstructure:"poll_timeout"`
	BatchLimit  int           `mapstructure:"batch_limit"`
}

// ArchiveConfig configures the RSS channel-archive fallback source, used
// when no bot token is available for the channel.
type ArchiveConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	Lookback          time.Duration `mapstructure:"lookback"`
	EntryWindow       time.Duration `mapstructure:"entry_window"`
	EmptyStreakLimit  int           `mapstructure:"empty_streak_limit"`
	EmptyStreakWindow time.Duration `mapstructure:"empty_streak_window"`
	InitialOffset     int64         `mapstructure:"initial_offset"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.log_queries", false)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.ingest", "@every 5s")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "15s")
	v.SetDefault("telegram.poll_timeout", 0)
	v.SetDefault("telegram.batch_limit", 100)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.timeout", "15s")
	v.SetDefault("ingest.lock_ttl", "7s")
	v.SetDefault("ingest.lookback", "2h")
	v.SetDefault("ingest.entry_window", "20m")
	v.SetDefault("ingest.empty_streak_limit", 3)
	v.SetDefault("ingest.empty_streak_window", "60s")
	v.SetDefault("ingest.initial_offset", 0)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
