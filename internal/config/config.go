// Package config loads the bot configuration from YAML and the environment.
package config

import (
	stderrors "errors"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/indicator"
	"github.com/rxtech-lab/indicator-bot/internal/notify"
	"github.com/rxtech-lab/indicator-bot/internal/signal"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "indicator-bot.yaml"

// Environment variables that override credentials from the file.
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvTelegramToken    = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvSMTPPassword     = "SMTP_PASSWORD"
)

// SymbolConfig is the traded pair.
type SymbolConfig struct {
	Base  string `yaml:"base" json:"base" jsonschema:"title=Base Asset,description=Asset that is bought and sold,default=ETH" validate:"required,alphanum"`
	Quote string `yaml:"quote" json:"quote" jsonschema:"title=Quote Asset,description=Asset cash is held in,default=USD" validate:"required,alphanum"`
}

// Symbol returns the exchange symbol, e.g. ETHUSD.
func (s SymbolConfig) Symbol() string {
	return s.Base + s.Quote
}

// IndicatorConfig sets the indicator periods.
type IndicatorConfig struct {
	TrendPeriod    int `yaml:"trendPeriod" json:"trendPeriod" jsonschema:"title=Trend Period,description=EMA period in samples,default=24" validate:"gte=1"`
	MomentumPeriod int `yaml:"momentumPeriod" json:"momentumPeriod" jsonschema:"title=Momentum Period,description=RSI period in samples,default=14" validate:"gte=1"`
}

// SignalConfig holds the decision thresholds. Limits are fractions.
type SignalConfig struct {
	MALowerLimit    decimal.Decimal `yaml:"maLowerLimit" json:"maLowerLimit" jsonschema:"title=MA Lower Limit,description=Fraction close must sit below the trend to enter,default=0.0075" validate:"gte=0,lt=1"`
	RSILowerLimit   decimal.Decimal `yaml:"rsiLowerLimit" json:"rsiLowerLimit" jsonschema:"title=RSI Lower Limit,description=Momentum at or below which entries are allowed,default=39.5" validate:"gte=0,lte=100"`
	RSIUpperLimit   decimal.Decimal `yaml:"rsiUpperLimit" json:"rsiUpperLimit" jsonschema:"title=RSI Upper Limit,description=Carried for parity and not consulted,default=70" validate:"gte=0,lte=100"`
	TakeProfitLimit decimal.Decimal `yaml:"takeProfitLimit" json:"takeProfitLimit" jsonschema:"title=Take Profit,description=Gain over entry price that triggers an exit,default=0.01" validate:"gte=0"`
	StopLoss        decimal.Decimal `yaml:"stopLoss" json:"stopLoss" jsonschema:"title=Stop Loss,description=Loss under entry price that triggers an exit when enabled,default=0.05" validate:"gte=0,lt=1"`
	StopLossEnabled bool            `yaml:"stopLossEnabled" json:"stopLossEnabled" jsonschema:"title=Stop Loss Enabled,default=false"`
}

// OrderConfig sizes orders.
type OrderConfig struct {
	MinimumCash       decimal.Decimal `yaml:"minimumCash" json:"minimumCash" jsonschema:"title=Minimum Cash,description=Smallest quote balance an entry is attempted with,default=10" validate:"gte=0"`
	MinimumCoin       decimal.Decimal `yaml:"minimumCoin" json:"minimumCoin" jsonschema:"title=Minimum Coin,description=Smallest base balance adopted as a position at start-up,default=0.0001" validate:"gte=0"`
	QuantityPrecision int32           `yaml:"quantityPrecision" json:"quantityPrecision" jsonschema:"title=Quantity Precision,description=Decimal places order quantities are truncated to,default=6" validate:"gte=0,lte=18"`
}

// ScheduleConfig sets the loop cadence.
type ScheduleConfig struct {
	CycleMinutes      int           `yaml:"cycleMinutes" json:"cycleMinutes" jsonschema:"title=Cycle Minutes,description=Active cycles run when the minute is a multiple of this,default=10" validate:"gte=1,lte=60"`
	ActiveSleep       time.Duration `yaml:"activeSleep" json:"activeSleep" jsonschema:"title=Active Sleep,description=Wait after an active cycle,default=60s" validate:"gt=0"`
	IdleSleep         time.Duration `yaml:"idleSleep" json:"idleSleep" jsonschema:"title=Idle Sleep,description=Wait after an idle tick,default=28s" validate:"gt=0"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" json:"heartbeatInterval" jsonschema:"title=Heartbeat Interval,default=12h" validate:"gt=0"`
	SeedLookback      time.Duration `yaml:"seedLookback" json:"seedLookback" jsonschema:"title=Seed Lookback,description=History fetched at start-up,default=8h" validate:"gte=0"`
	SeedStride        int           `yaml:"seedStride" json:"seedStride" jsonschema:"title=Seed Stride,description=Keep every Nth 1m candle when seeding,default=10" validate:"gte=1"`
	SeedRetries       uint64        `yaml:"seedRetries" json:"seedRetries" jsonschema:"title=Seed Retries,description=Retries of the start-up history fetch,default=5"`
	SeedBackoff       time.Duration `yaml:"seedBackoff" json:"seedBackoff" jsonschema:"title=Seed Backoff,description=First wait between seed fetch retries,default=1s" validate:"gte=0"`
	BrokerTimeout     time.Duration `yaml:"brokerTimeout" json:"brokerTimeout" jsonschema:"title=Broker Timeout,description=Per-call broker timeout,default=15s" validate:"gt=0"`
}

// BreakerConfig configures the broker circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"maxFailures" json:"maxFailures" jsonschema:"title=Max Failures,default=5" validate:"gte=1"`
	ResetTimeout time.Duration `yaml:"resetTimeout" json:"resetTimeout" jsonschema:"title=Reset Timeout,default=5m" validate:"gt=0"`
}

// NotifyConfig selects notification channels. Log is always on.
type NotifyConfig struct {
	Telegram  *notify.TelegramConfig `yaml:"telegram,omitempty" json:"telegram,omitempty" jsonschema:"title=Telegram"`
	Webhook   *notify.WebhookConfig  `yaml:"webhook,omitempty" json:"webhook,omitempty" jsonschema:"title=Webhook"`
	SMTP      *notify.SMTPConfig     `yaml:"smtp,omitempty" json:"smtp,omitempty" jsonschema:"title=SMTP"`
	QueueSize int                    `yaml:"queueSize" json:"queueSize" jsonschema:"title=Queue Size,default=64" validate:"gte=1"`
}

// JournalConfig configures run folders and the DuckDB journal.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled" jsonschema:"title=Enabled,default=true"`
	DataDir       string `yaml:"dataDir" json:"dataDir" jsonschema:"title=Data Directory,default=./data" validate:"required_if=Enabled true"`
	ExportParquet bool   `yaml:"exportParquet" json:"exportParquet" jsonschema:"title=Export Parquet,description=Write parquet files on shutdown,default=true"`
}

// StatusConfig configures the metrics and status HTTP server.
type StatusConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled" jsonschema:"title=Enabled,default=false"`
	Addr       string        `yaml:"addr" json:"addr" jsonschema:"title=Listen Address,default=:9090" validate:"required_if=Enabled true"`
	StaleAfter time.Duration `yaml:"staleAfter" json:"staleAfter" jsonschema:"title=Stale After,default=5m" validate:"gte=0"`
}

// Config is the whole bot configuration.
type Config struct {
	Symbol               SymbolConfig         `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol"`
	Provider             broker.ProviderType  `yaml:"provider" json:"provider" jsonschema:"title=Provider,enum=binance-us,enum=binance-live,enum=binance-testnet,default=binance-us" validate:"required"`
	Binance              broker.BinanceConfig `yaml:"binance" json:"binance" jsonschema:"title=Binance"`
	Indicator            IndicatorConfig      `yaml:"indicator" json:"indicator" jsonschema:"title=Indicator"`
	Signal               SignalConfig         `yaml:"signal" json:"signal" jsonschema:"title=Signal"`
	Order                OrderConfig          `yaml:"order" json:"order" jsonschema:"title=Order"`
	Schedule             ScheduleConfig       `yaml:"schedule" json:"schedule" jsonschema:"title=Schedule"`
	Breaker              BreakerConfig        `yaml:"breaker" json:"breaker" jsonschema:"title=Breaker"`
	AdoptExistingBalance bool                 `yaml:"adoptExistingBalance" json:"adoptExistingBalance" jsonschema:"title=Adopt Existing Balance,description=Start HELD when a coin balance exists,default=false"`
	Notify               NotifyConfig         `yaml:"notify" json:"notify" jsonschema:"title=Notify"`
	Journal              JournalConfig        `yaml:"journal" json:"journal" jsonschema:"title=Journal"`
	Status               StatusConfig         `yaml:"status" json:"status" jsonschema:"title=Status"`
	LogLevel             string               `yaml:"logLevel" json:"logLevel" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error,default=info" validate:"oneof=debug info warn error"`
}

// Default returns the reference configuration without credentials.
func Default() Config {
	signalDefaults := signal.DefaultConfig()
	indicatorDefaults := indicator.DefaultConfig()
	guarded := broker.DefaultGuardedConfig()

	return Config{
		Symbol:   SymbolConfig{Base: "ETH", Quote: "USD"},
		Provider: broker.ProviderBinanceUS,
		Binance:  broker.BinanceConfig{APIKey: "", SecretKey: "", BaseURL: ""},
		Indicator: IndicatorConfig{
			TrendPeriod:    indicatorDefaults.TrendPeriod,
			MomentumPeriod: indicatorDefaults.MomentumPeriod,
		},
		Signal: SignalConfig{
			MALowerLimit:    signalDefaults.MALowerLimit,
			RSILowerLimit:   signalDefaults.RSILowerLimit,
			RSIUpperLimit:   signalDefaults.RSIUpperLimit,
			TakeProfitLimit: signalDefaults.TakeProfitLimit,
			StopLoss:        signalDefaults.StopLoss,
			StopLossEnabled: signalDefaults.StopLossEnabled,
		},
		Order: OrderConfig{
			MinimumCash:       decimal.NewFromInt(10),
			MinimumCoin:       decimal.RequireFromString("0.0001"),
			QuantityPrecision: 6,
		},
		Schedule: ScheduleConfig{
			CycleMinutes:      10,
			ActiveSleep:       60 * time.Second,
			IdleSleep:         28 * time.Second,
			HeartbeatInterval: 12 * time.Hour,
			SeedLookback:      8 * time.Hour,
			SeedStride:        10,
			SeedRetries:       5,
			SeedBackoff:       time.Second,
			BrokerTimeout:     guarded.Timeout,
		},
		Breaker: BreakerConfig{
			MaxFailures:  guarded.MaxFailures,
			ResetTimeout: guarded.ResetTimeout,
		},
		AdoptExistingBalance: false,
		Notify: NotifyConfig{
			Telegram:  nil,
			Webhook:   nil,
			SMTP:      nil,
			QueueSize: notify.DefaultAsyncConfig().QueueSize,
		},
		Journal: JournalConfig{
			Enabled:       true,
			DataDir:       "./data",
			ExportParquet: true,
		},
		Status: StatusConfig{
			Enabled:    false,
			Addr:       ":9090",
			StaleAfter: 5 * time.Minute,
		},
		LogLevel: "info",
	}
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Load reads path over the defaults, applies environment overrides and validates.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment.
func LoadWithEnv(path string, lookup LookupEnv) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)

	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}
	case stderrors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	if err := config.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c *Config) applyEnv(lookup LookupEnv) error {
	if v, ok := lookup(EnvBinanceAPIKey); ok && v != "" {
		c.Binance.APIKey = v
	}

	if v, ok := lookup(EnvBinanceSecretKey); ok && v != "" {
		c.Binance.SecretKey = v
	}

	token, hasToken := lookup(EnvTelegramToken)
	chatID, hasChatID := lookup(EnvTelegramChatID)

	if (hasToken && token != "") || (hasChatID && chatID != "") {
		if c.Notify.Telegram == nil {
			c.Notify.Telegram = &notify.TelegramConfig{Token: "", ChatID: 0}
		}

		if token != "" {
			c.Notify.Telegram.Token = token
		}

		if chatID != "" {
			id, err := strconv.ParseInt(chatID, 10, 64)
			if err != nil {
				return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid %s", EnvTelegramChatID)
			}

			c.Notify.Telegram.ChatID = id
		}
	}

	if v, ok := lookup(EnvSMTPPassword); ok && v != "" && c.Notify.SMTP != nil {
		c.Notify.SMTP.Password = v
	}

	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if _, err := broker.GetProviderInfo(string(c.Provider)); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if err := c.SignalConfig().Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if c.Notify.Telegram != nil && c.Notify.Telegram.Token == "" {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "telegram token is required (set it in the file or %s)", EnvTelegramToken)
	}

	return nil
}

// SignalConfig converts the signal section for signal.NewEvaluator.
func (c *Config) SignalConfig() signal.Config {
	return signal.Config{
		MALowerLimit:    c.Signal.MALowerLimit,
		RSILowerLimit:   c.Signal.RSILowerLimit,
		RSIUpperLimit:   c.Signal.RSIUpperLimit,
		TakeProfitLimit: c.Signal.TakeProfitLimit,
		StopLoss:        c.Signal.StopLoss,
		StopLossEnabled: c.Signal.StopLossEnabled,
	}
}

// IndicatorConfig converts the indicator section for indicator.NewEngine.
func (c *Config) IndicatorConfig() indicator.Config {
	return indicator.Config{
		TrendPeriod:    c.Indicator.TrendPeriod,
		MomentumPeriod: c.Indicator.MomentumPeriod,
	}
}

// GuardedConfig converts the breaker and timeout settings for broker.NewGuarded.
func (c *Config) GuardedConfig() broker.GuardedConfig {
	return broker.GuardedConfig{
		Timeout:      c.Schedule.BrokerTimeout,
		MaxFailures:  c.Breaker.MaxFailures,
		ResetTimeout: c.Breaker.ResetTimeout,
	}
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}

	return nil
}
