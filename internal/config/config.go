package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"defiFetch/internal/heightcache"
	"defiFetch/internal/model"
	"defiFetch/internal/reconcile"
	"defiFetch/internal/storage"
)

// ErrUnsupported marks a valid but unimplemented combination of options.
var ErrUnsupported = errors.New("unsupported")

// Output types a run can produce.
const (
	OutputRaw      = "raw"
	OutputTick     = "tick"
	OutputMinute   = "minute"
	OutputPosition = "position"
)

const ProtocolUniswapV3 = "uniswap_v3"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Chain    Chain
	FromDay  string
	ToDay    string
	Pools    []string
	Proxy    string
	Topics   [model.MaxTopics][]string
	Protocol string
	FeeTier  uint32

	Output      string
	Source      DataSource
	OutDir      string
	Format      string
	SkipExisted bool
	KeepRaw     bool

	RPCURL           string
	RPCProxy         string
	RPCAuth          string
	ExplorerURL      string
	APIKey           string
	ExplorerInterval time.Duration
	BatchSize        uint64
	GroupSize        uint64
	Workers          int
	TimestampWorkers int
	Exhaustive       bool
	SkipTimestamp    bool
	SaveEvery        int

	// Position reconciliation tolerances in raw token units.
	Tolerance            int64
	SoleCollectTolerance int64

	HeightCache string
	RedisAddr   string
	PGDSN       string
	ExportDir   string

	ParallelDays int
	Timezone     string
	MetricsAddr  string
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain", string(Ethereum))
	v.SetDefault("protocol", ProtocolUniswapV3)
	v.SetDefault("output", OutputRaw)
	v.SetDefault("source", string(SourceRPC))
	v.SetDefault("out-dir", "./data")
	v.SetDefault("format", string(storage.FormatCSV))
	v.SetDefault("skip-existed", true)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("workers", 8)
	v.SetDefault("timestamp-workers", 8)
	v.SetDefault("height-cache", string(heightcache.BackendAuto))
	v.SetDefault("tolerance", int64(reconcile.DefaultTolerance))
	v.SetDefault("sole-collect-tolerance", int64(reconcile.DefaultSoleCollectTolerance))
	v.SetDefault("parallel-days", 1)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Chain:            Chain(strings.ToLower(v.GetString("chain"))),
		FromDay:          v.GetString("from"),
		ToDay:            v.GetString("to"),
		Pools:            getStringSlice(v, "pool"),
		Proxy:            v.GetString("proxy"),
		Protocol:         strings.ToLower(v.GetString("protocol")),
		FeeTier:          v.GetUint32("fee-tier"),
		Output:           strings.ToLower(v.GetString("output")),
		Source:           DataSource(strings.ToLower(v.GetString("source"))),
		OutDir:           v.GetString("out-dir"),
		Format:           v.GetString("format"),
		SkipExisted:      v.GetBool("skip-existed"),
		KeepRaw:          v.GetBool("keep-raw"),
		RPCURL:           v.GetString("rpc"),
		RPCProxy:         v.GetString("rpc-proxy"),
		RPCAuth:          v.GetString("rpc-auth"),
		ExplorerURL:      v.GetString("explorer-url"),
		APIKey:           v.GetString("api-key"),
		ExplorerInterval: v.GetDuration("explorer-interval"),
		BatchSize:        v.GetUint64("batch-size"),
		GroupSize:        v.GetUint64("group-size"),
		Workers:          v.GetInt("workers"),
		TimestampWorkers: v.GetInt("timestamp-workers"),
		Exhaustive:       v.GetBool("exhaustive"),
		SkipTimestamp:    v.GetBool("skip-timestamp"),
		SaveEvery:        v.GetInt("save-every"),
		HeightCache:      v.GetString("height-cache"),
		RedisAddr:        v.GetString("redis-addr"),
		PGDSN:            v.GetString("pg-dsn"),
		ExportDir:        v.GetString("export-dir"),
		ParallelDays:     v.GetInt("parallel-days"),
		Timezone:         v.GetString("timezone"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),

		Tolerance:            v.GetInt64("tolerance"),
		SoleCollectTolerance: v.GetInt64("sole-collect-tolerance"),
	}
	for pos := 0; pos < model.MaxTopics; pos++ {
		cfg.Topics[pos] = getStringSlice(v, fmt.Sprintf("topic%d", pos))
	}

	return cfg, nil
}

// Validate checks every option that can be checked without network access.
func (c Config) Validate() error {
	info, ok := c.Chain.Info()
	if !ok {
		return fmt.Errorf("unknown chain: %s", c.Chain)
	}

	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool address is required")
	}
	for _, pool := range c.Pools {
		if !common.IsHexAddress(pool) {
			return fmt.Errorf("invalid pool address: %s", pool)
		}
	}
	if c.Proxy != "" && !common.IsHexAddress(c.Proxy) {
		return fmt.Errorf("invalid proxy address: %s", c.Proxy)
	}
	for pos, set := range c.Topics {
		for _, topic := range set {
			data, err := hexutil.Decode(topic)
			if err != nil || len(data) != 32 {
				return fmt.Errorf("invalid topic%d: %s", pos, topic)
			}
		}
	}

	from, to, err := c.DayRange()
	if err != nil {
		return err
	}
	if to.Before(from) {
		return fmt.Errorf("to day %s is before from day %s", c.ToDay, c.FromDay)
	}

	switch c.Output {
	case OutputRaw, OutputTick, OutputMinute, OutputPosition:
	default:
		return fmt.Errorf("unknown output type: %s", c.Output)
	}
	if c.Output == OutputMinute && c.FeeTier == 0 {
		return fmt.Errorf("fee tier is required for minute output")
	}

	if c.SaveEvery < 0 {
		return fmt.Errorf("save every must not be negative")
	}
	if c.Tolerance < 0 || c.SoleCollectTolerance < 0 {
		return fmt.Errorf("reconcile tolerances must not be negative")
	}

	if _, err := heightcache.ParseBackend(c.HeightCache); err != nil {
		return err
	}
	if c.HeightCache == string(heightcache.BackendRedis) && c.RedisAddr == "" {
		return fmt.Errorf("redis addr is required for the redis height cache")
	}

	switch c.Source {
	case SourceRPC:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc url is required")
		}
		if c.BatchSize == 0 {
			return fmt.Errorf("batch size must be greater than zero")
		}
		if c.ExplorerURL == "" && info.ExplorerURL == "" {
			return fmt.Errorf("explorer url is required for chain %s", c.Chain)
		}
	case SourceWarehouse:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for the warehouse source")
		}
	case SourceExport:
		if c.ExportDir == "" {
			return fmt.Errorf("export dir is required for the export source")
		}
	default:
		return fmt.Errorf("unknown data source: %s", c.Source)
	}

	return c.CheckCapability()
}

// CheckCapability rejects combinations that are well formed but not implemented.
func (c Config) CheckCapability() error {
	if !c.Chain.Allows(c.Source) {
		return fmt.Errorf("%w: source %s is not available for chain %s", ErrUnsupported, c.Source, c.Chain)
	}
	if c.Protocol != ProtocolUniswapV3 {
		return fmt.Errorf("%w: protocol %s", ErrUnsupported, c.Protocol)
	}
	if _, err := storage.ParseFormat(c.Format); err != nil {
		if errors.Is(err, storage.ErrUnsupportedFormat) {
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return err
	}
	if c.Output == OutputMinute && c.SkipTimestamp {
		return fmt.Errorf("%w: minute output needs block timestamps", ErrUnsupported)
	}
	if c.Output == OutputPosition && c.ProxyAddress() == "" {
		return fmt.Errorf("%w: chain %s has no position manager", ErrUnsupported, c.Chain)
	}
	return nil
}

// Location returns the configured time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

// DayRange parses the inclusive day range in the configured time zone.
func (c Config) DayRange() (time.Time, time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, err := time.ParseInLocation(time.DateOnly, c.FromDay, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from day %q: %w", c.FromDay, err)
	}
	toDay := c.ToDay
	if toDay == "" {
		toDay = c.FromDay
	}
	to, err := time.ParseInLocation(time.DateOnly, toDay, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to day %q: %w", toDay, err)
	}
	return from, to, nil
}

// Days lists every day of the range.
func (c Config) Days() ([]time.Time, error) {
	from, to, err := c.DayRange()
	if err != nil {
		return nil, err
	}
	var days []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days, nil
}

// ProxyAddress returns the configured proxy or the chain's position manager.
func (c Config) ProxyAddress() string {
	if c.Proxy != "" {
		return c.Proxy
	}
	info, _ := c.Chain.Info()
	return info.PositionManager
}

// Explorer returns the configured explorer endpoint or the chain default.
func (c Config) Explorer() string {
	if c.ExplorerURL != "" {
		return c.ExplorerURL
	}
	info, _ := c.Chain.Info()
	return info.ExplorerURL
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
