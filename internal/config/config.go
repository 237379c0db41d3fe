package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"monaco-mirror/internal/logging"
	"monaco-mirror/internal/protocol"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
}

// RPCConfig covers Solana RPC access.
type RPCConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	Commitment        string        `mapstructure:"commitment"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// WatchConfig lists the source accounts to mirror.
type WatchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	LookbackLimit int      `mapstructure:"lookback_limit"`
	SeenCapacity  int      `mapstructure:"seen_capacity"`
}

// ProtocolConfig selects the active instruction decoder.
type ProtocolConfig struct {
	Active string       `mapstructure:"active"`
	Monaco MonacoConfig `mapstructure:"monaco"`
}

// MonacoConfig 描述 Monaco 下单指令的字节布局。offset 由运营方按目标程序版本
// 提供, 程序升级后布局可能变化, 绝不在代码里猜测。
type MonacoConfig struct {
	ProgramID             string `mapstructure:"program_id"`
	Discriminator         string `mapstructure:"discriminator"`
	MarketAccountPosition int    `mapstructure:"market_account_position"`
	OutcomeIndexOffset    int    `mapstructure:"outcome_index_offset"`
	ForOutcomeOffset      int    `mapstructure:"for_outcome_offset"`
	StakeOffset           int    `mapstructure:"stake_offset"`
	PriceOffset           int    `mapstructure:"price_offset"`
	StakeDecimals         int32  `mapstructure:"stake_decimals"`
	PriceDecimals         int32  `mapstructure:"price_decimals"`
}

// RiskConfig carries the replication caps.
type RiskConfig struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"`
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`
	CopyMultiplier  float64 `mapstructure:"copy_multiplier"`
}

// ExecutorConfig selects and parameterises the execution adapter.
type ExecutorConfig struct {
	// Mode is "paper" (dry run) or "live".
	Mode string `mapstructure:"mode"`
	// WalletKey is the base58 private key of the executing account. Required
	// in live mode; supply it via MONACOMIRROR_EXECUTOR_WALLET_KEY rather
	// than the config file.
	WalletKey      string        `mapstructure:"wallet_key"`
	ExtraAccounts  []string      `mapstructure:"extra_accounts"`
	SkipPreflight  bool          `mapstructure:"skip_preflight"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BuyTolerance   float64       `mapstructure:"buy_tolerance"`
	SellTolerance  float64       `mapstructure:"sell_tolerance"`
	DefaultCeiling float64       `mapstructure:"default_ceiling"`
	DefaultFloor   float64       `mapstructure:"default_floor"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MONACOMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "monacomirror")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.cycle_timeout", "2m")

	v.SetDefault("rpc.endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.commitment", "confirmed")
	v.SetDefault("rpc.request_timeout", "10s")
	v.SetDefault("rpc.requests_per_second", 8.0)

	v.SetDefault("watch.lookback_limit", 25)
	v.SetDefault("watch.seen_capacity", 2048)

	v.SetDefault("protocol.active", "monaco")
	v.SetDefault("protocol.monaco.price_offset", -1)

	v.SetDefault("risk.max_position_size", 1.0)
	v.SetDefault("risk.max_daily_loss", 10.0)
	v.SetDefault("risk.copy_multiplier", 1.0)

	v.SetDefault("executor.mode", "paper")
	v.SetDefault("executor.request_timeout", "20s")
	v.SetDefault("executor.buy_tolerance", 1.01)
	v.SetDefault("executor.sell_tolerance", 0.99)
	v.SetDefault("executor.default_ceiling", 0.99)
	v.SetDefault("executor.default_floor", 0.01)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values. Anything that
// fails here is fatal at startup; nothing is re-validated at runtime.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("rpc.endpoint is required")
	}
	if len(c.Watch.Addresses) == 0 {
		return fmt.Errorf("watch.addresses 至少需要一个源地址")
	}
	if _, err := c.WatchedAddresses(); err != nil {
		return err
	}
	if c.Watch.LookbackLimit <= 0 {
		return fmt.Errorf("watch.lookback_limit must be greater than zero")
	}

	if c.Protocol.Active != "monaco" {
		return fmt.Errorf("protocol.active %q is not supported", c.Protocol.Active)
	}
	if _, err := c.Protocol.Monaco.Program(); err != nil {
		return err
	}
	if _, err := c.Protocol.Monaco.Layout(); err != nil {
		return err
	}

	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be greater than zero")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be greater than zero")
	}
	if c.Risk.CopyMultiplier <= 0 {
		return fmt.Errorf("risk.copy_multiplier must be greater than zero")
	}

	switch c.Executor.Mode {
	case "paper":
	case "live":
		if c.Executor.WalletKey == "" {
			return fmt.Errorf("executor.wallet_key 必须配置 (live 模式)")
		}
		if _, err := solana.PrivateKeyFromBase58(c.Executor.WalletKey); err != nil {
			return fmt.Errorf("executor.wallet_key is not a valid base58 key: %w", err)
		}
	default:
		return fmt.Errorf("executor.mode %q is not supported", c.Executor.Mode)
	}

	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// WatchedAddresses parses the configured source addresses.
func (c *Config) WatchedAddresses() ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(c.Watch.Addresses))
	for _, raw := range c.Watch.Addresses {
		key, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("watch.addresses entry %q: %w", raw, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Commitment maps the configured commitment string onto the RPC constant.
func (c *Config) Commitment() (rpc.CommitmentType, error) {
	switch strings.ToLower(c.RPC.Commitment) {
	case "", "confirmed":
		return rpc.CommitmentConfirmed, nil
	case "processed":
		return rpc.CommitmentProcessed, nil
	case "finalized":
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("rpc.commitment %q is not supported", c.RPC.Commitment)
	}
}

// Program parses the configured Monaco program id.
func (m MonacoConfig) Program() (solana.PublicKey, error) {
	if m.ProgramID == "" {
		return solana.PublicKey{}, fmt.Errorf("protocol.monaco.program_id is required")
	}
	key, err := solana.PublicKeyFromBase58(m.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("protocol.monaco.program_id: %w", err)
	}
	return key, nil
}

// Layout materialises the configured instruction layout.
func (m MonacoConfig) Layout() (protocol.Layout, error) {
	discriminator, err := hex.DecodeString(strings.TrimPrefix(m.Discriminator, "0x"))
	if err != nil {
		return protocol.Layout{}, fmt.Errorf("protocol.monaco.discriminator: %w", err)
	}

	layout := protocol.Layout{
		Discriminator:         discriminator,
		MarketAccountPosition: m.MarketAccountPosition,
		OutcomeIndexOffset:    m.OutcomeIndexOffset,
		ForOutcomeOffset:      m.ForOutcomeOffset,
		StakeOffset:           m.StakeOffset,
		PriceOffset:           m.PriceOffset,
		StakeDecimals:         m.StakeDecimals,
		PriceDecimals:         m.PriceDecimals,
	}
	if err := layout.Validate(); err != nil {
		return protocol.Layout{}, fmt.Errorf("protocol.monaco layout: %w", err)
	}
	return layout, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
