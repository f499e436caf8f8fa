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
	Store    StoreConfig    `mapstructure:"store"`
	Cron     CronConfig     `mapstructure:"cron"`
	Gamma    GammaConfig    `mapstructure:"gamma"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Executor ExecutorConfig `mapstructure:"executor"`
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
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type StoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// CronConfig governs the housekeeping ticks that ride robfig/cron rather than the
// sub-second window-boundary loop (that loop is a dedicated goroutine, see internal/supervisor).
// RotationLookahead is read by that supervisor loop, not by cron.
type CronConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RotationLookahead time.Duration `mapstructure:"rotation_lookahead"`
	StalenessCheck    string        `mapstructure:"staleness_check"`
}

type GammaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	URL              string        `mapstructure:"url"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	BackoffMin       time.Duration `mapstructure:"backoff_min"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
}

// EngineConfig mirrors the tunable trading Config of the core spec.
type EngineConfig struct {
	StartingCash      float64   `mapstructure:"starting_cash"`
	EntryThreshold    float64   `mapstructure:"entry_threshold"`
	Shares            float64   `mapstructure:"shares"`
	DCAEnabled        bool      `mapstructure:"dca_enabled"`
	DCALevels         []float64 `mapstructure:"dca_levels"`
	DCAMultiplier     float64   `mapstructure:"dca_multiplier"`
	SumTarget         float64   `mapstructure:"sum_target"`
	BreakevenEnabled  bool      `mapstructure:"breakeven_enabled"`
	WindowMinutes     int       `mapstructure:"window_min"`
	DumpWindowSeconds int       `mapstructure:"dump_window_sec"`
	CooldownSeconds   int       `mapstructure:"cooldown_sec"`
}

type ExecutorConfig struct {
	Mode            string        `mapstructure:"mode"`
	BinaryPath      string        `mapstructure:"binary_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxOrderSizeUSD string        `mapstructure:"max_order_size_usd"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UPDOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("store.max_open_conns", 20)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", "30m")
	v.SetDefault("store.conn_max_idle_time", "5m")
	v.SetDefault("store.timezone", "UTC")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.rotation_lookahead", "20s")
	v.SetDefault("cron.staleness_check", "@every 15s")

	v.SetDefault("gamma.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("gamma.timeout", "5s")

	v.SetDefault("stream.url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("stream.refresh_interval", "30s")
	v.SetDefault("stream.heartbeat_interval", "20s")
	v.SetDefault("stream.ping_timeout", "5s")
	v.SetDefault("stream.backoff_min", "1s")
	v.SetDefault("stream.backoff_max", "30s")
	v.SetDefault("stream.stale_after", "15m")

	v.SetDefault("engine.starting_cash", 1000.0)
	v.SetDefault("engine.entry_threshold", 0.35)
	v.SetDefault("engine.shares", 10.0)
	v.SetDefault("engine.dca_enabled", true)
	v.SetDefault("engine.dca_levels", []float64{0.30, 0.25, 0.20, 0.15})
	v.SetDefault("engine.dca_multiplier", 1.5)
	v.SetDefault("engine.sum_target", 0.99)
	v.SetDefault("engine.breakeven_enabled", true)
	v.SetDefault("engine.window_min", 15)
	v.SetDefault("engine.dump_window_sec", 120)
	v.SetDefault("engine.cooldown_sec", 5)

	v.SetDefault("executor.mode", "simulated")
	v.SetDefault("executor.binary_path", "./order-executor")
	v.SetDefault("executor.timeout", "5s")
	v.SetDefault("executor.max_order_size_usd", "500")

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
