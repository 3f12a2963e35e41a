package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"nft/seller/internal/browser"
	"nft/seller/internal/domain"
	"nft/seller/internal/marketplace"
	"nft/seller/internal/state"
)

// Config holds all configuration for the application
type Config struct {
	Seller   SellerConfig       `mapstructure:"seller"`
	Browser  BrowserConfig      `mapstructure:"browser"`
	Progress ProgressConfig     `mapstructure:"progress"`
	Markup   marketplace.Markup `mapstructure:"markup"`
	Database DatabaseConfig     `mapstructure:"database"`
	Redis    RedisConfig        `mapstructure:"redis"`
	Log      LogConfig          `mapstructure:"log"`
}

// SellerConfig holds what to list and at which price
type SellerConfig struct {
	CollectionAddress string          `mapstructure:"collection_address"`
	StartID           uint64          `mapstructure:"start_id"`
	EndID             uint64          `mapstructure:"end_id"`
	Price             float64         `mapstructure:"price"`
	ReuseProgress     state.ReuseMode `mapstructure:"reuse_progress"`
	ItemsPerMinute    int             `mapstructure:"max_items_per_minute"`
	WaitForWallet     bool            `mapstructure:"wait_for_wallet"`
}

func (c SellerConfig) Items() domain.ItemRange {
	return domain.ItemRange{Start: domain.ItemID(c.StartID), End: domain.ItemID(c.EndID)}
}

// BrowserConfig holds remote browser connection details
type BrowserConfig struct {
	Driver          string              `mapstructure:"driver"` // chromedp or rod
	Mode            string              `mapstructure:"mode"`   // attach or launch
	Host            string              `mapstructure:"host"`
	Port            int                 `mapstructure:"port"`
	ExecPath        string              `mapstructure:"exec_path"`
	UserDataDir     string              `mapstructure:"user_data_dir"`
	Headless        bool                `mapstructure:"headless"`
	StartURL        string              `mapstructure:"start_url"`
	ReadyTimeout    time.Duration       `mapstructure:"ready_timeout"`
	PageLoadTimeout time.Duration       `mapstructure:"page_load_timeout"`
	WindowTimeout   time.Duration       `mapstructure:"window_timeout"`
	Retry           browser.RetryPolicy `mapstructure:"retry"`
}

func (c BrowserConfig) DebugURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// ProgressConfig selects where the progress record lives
type ProgressConfig struct {
	Backend        string `mapstructure:"backend"` // file or redis
	File           string `mapstructure:"file"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	EventsEnabled bool   `mapstructure:"events_enabled"`
	StreamPrefix  string `mapstructure:"stream_prefix"`
	StreamMaxLen  int64  `mapstructure:"stream_max_len"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultLogConfig is where logs go until the configuration is loaded.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", File: "log.txt"}
}

// NeedsRedis reports whether any component is backed by Redis.
func (c *Config) NeedsRedis() bool {
	return c.Progress.Backend == "redis" || c.Redis.EventsEnabled
}

// Load reads config.yaml (or --config), .env, NFTSELLER_* environment
// variables and command line flags, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: load .env: %v", domain.ErrConfig, err)
	}

	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	v.SetEnvPrefix("NFTSELLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile, _ := flags.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: error reading config file: %v", domain.ErrConfig, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config: %v", domain.ErrConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("nft-seller", pflag.ContinueOnError)
	flags.String("config", "", "path to the config file (default ./config.yaml)")
	flags.String("collection", "", "collection address, item IDs are appended to it")
	flags.Uint64("start", 0, "first item ID to list")
	flags.Uint64("end", 0, "last item ID to list (inclusive)")
	flags.Float64("price", 0, "listing price")
	flags.Int("port", 0, "remote debugging port of the browser")
	flags.String("reuse-progress", "", "reuse previous progress: yes, no or ask")
	flags.String("driver", "", "browser driver: chromedp or rod")
	flags.String("mode", "", "browser mode: attach or launch")
	return flags
}

var flagKeys = map[string]string{
	"collection":     "seller.collection_address",
	"start":          "seller.start_id",
	"end":            "seller.end_id",
	"price":          "seller.price",
	"port":           "browser.port",
	"reuse-progress": "seller.reuse_progress",
	"driver":         "browser.driver",
	"mode":           "browser.mode",
}

// bindFlags binds only flags given on the command line, so unset flags do not
// mask values from the config file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("seller.collection_address", "")
	v.SetDefault("seller.start_id", 0)
	v.SetDefault("seller.end_id", 0)
	v.SetDefault("seller.price", 0)
	v.SetDefault("seller.reuse_progress", string(state.ReuseAsk))
	v.SetDefault("seller.max_items_per_minute", 0)
	v.SetDefault("seller.wait_for_wallet", true)

	policy := browser.DefaultRetryPolicy()
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.mode", "attach")
	v.SetDefault("browser.host", "localhost")
	v.SetDefault("browser.port", 9522)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "./browser-profile")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.start_url", "https://opensea.io/")
	v.SetDefault("browser.ready_timeout", "30s")
	v.SetDefault("browser.page_load_timeout", "60s")
	v.SetDefault("browser.window_timeout", "0s")
	v.SetDefault("browser.retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("browser.retry.poll_interval", policy.PollInterval.String())
	v.SetDefault("browser.retry.lookup_timeout", policy.Timeout.String())
	v.SetDefault("browser.retry.retry_delay", policy.RetryDelay.String())
	v.SetDefault("browser.retry.on_exhaustion", string(policy.OnExhaustion))

	v.SetDefault("progress.backend", "file")
	v.SetDefault("progress.file", "selled.json")
	v.SetDefault("progress.redis_key_prefix", "nftseller:progress:")

	markup := marketplace.OpenSea()
	v.SetDefault("markup.listed_class", markup.ListedClass)
	v.SetDefault("markup.listed_selector", markup.ListedSelector)
	v.SetDefault("markup.list_for_sale_class", markup.ListForSaleClass)
	v.SetDefault("markup.list_for_sale_selector", markup.ListForSaleSelector)
	v.SetDefault("markup.price_input_id", markup.PriceInputID)
	v.SetDefault("markup.submit_selector", markup.SubmitSelector)
	v.SetDefault("markup.expand_selector", markup.ExpandSelector)
	v.SetDefault("markup.sign_selector", markup.SignSelector)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "nftseller")
	v.SetDefault("database.user", "nftseller")
	v.SetDefault("database.password", "nftseller")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.events_enabled", false)
	v.SetDefault("redis.stream_prefix", "nftseller:stream:")
	v.SetDefault("redis.stream_max_len", 10000)

	logDefaults := DefaultLogConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.file", logDefaults.File)
}

// Validate rejects configurations a run cannot safely start with.
func (c *Config) Validate() error {
	err := c.validate()
	if err == nil || errors.Is(err, domain.ErrConfig) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrConfig, err)
}

func (c *Config) validate() error {
	if err := marketplace.ValidateCollection(c.Seller.CollectionAddress); err != nil {
		return err
	}
	if c.Seller.StartID > c.Seller.EndID {
		return fmt.Errorf("seller.start_id %d is after seller.end_id %d", c.Seller.StartID, c.Seller.EndID)
	}
	// listing history stores item IDs as BIGINT
	if c.Seller.EndID > math.MaxInt64 {
		return fmt.Errorf("seller.end_id %d exceeds %d", c.Seller.EndID, int64(math.MaxInt64))
	}
	if c.Seller.Price <= 0 || math.IsInf(c.Seller.Price, 0) || math.IsNaN(c.Seller.Price) {
		return fmt.Errorf("seller.price must be a positive number, got %v", c.Seller.Price)
	}
	if err := c.Seller.ReuseProgress.Validate(); err != nil {
		return err
	}
	if c.Seller.ItemsPerMinute < 0 {
		return fmt.Errorf("seller.max_items_per_minute must not be negative")
	}

	switch c.Browser.Driver {
	case "chromedp", "rod":
	default:
		return fmt.Errorf("browser.driver must be chromedp or rod, got %q", c.Browser.Driver)
	}
	switch c.Browser.Mode {
	case "attach", "launch":
	default:
		return fmt.Errorf("browser.mode must be attach or launch, got %q", c.Browser.Mode)
	}
	if c.Browser.Port <= 0 || c.Browser.Port > 65535 {
		return fmt.Errorf("browser.port must be between 1 and 65535, got %d", c.Browser.Port)
	}
	if c.Browser.PageLoadTimeout < 0 || c.Browser.WindowTimeout < 0 {
		return fmt.Errorf("browser timeouts must not be negative")
	}
	if err := c.Browser.Retry.Validate(); err != nil {
		return fmt.Errorf("browser.retry: %w", err)
	}

	switch c.Progress.Backend {
	case "file":
		if c.Progress.File == "" {
			return fmt.Errorf("progress.file must be set for the file backend")
		}
	case "redis":
	default:
		return fmt.Errorf("progress.backend must be file or redis, got %q", c.Progress.Backend)
	}

	return c.Markup.Validate()
}
