package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds pool configuration loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	PGDSN    string
	Journal  string
	PoolName string

	Source          string
	SourceParams    map[string]string
	BackingDecimals uint8
	YieldDecimals   uint8

	Maturity          time.Time
	InitialRate       string
	DepositFeeBps     uint64
	EarlyRedeemBps    uint64
	MaturityRedeemBps uint64

	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pool-name", "default")
	v.SetDefault("source", "static")
	v.SetDefault("backing-decimals", 18)
	v.SetDefault("yield-decimals", 18)
	v.SetDefault("journal", "./data/receipts.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
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
		RPCURL:            v.GetString("rpc"),
		PGDSN:             v.GetString("pg-dsn"),
		Journal:           v.GetString("journal"),
		PoolName:          v.GetString("pool-name"),
		Source:            v.GetString("source"),
		SourceParams:      getStringMap(v, "source-params"),
		BackingDecimals:   uint8(v.GetUint("backing-decimals")),
		YieldDecimals:     uint8(v.GetUint("yield-decimals")),
		InitialRate:       v.GetString("initial-rate"),
		DepositFeeBps:     v.GetUint64("deposit-fee-bps"),
		EarlyRedeemBps:    v.GetUint64("early-redeem-fee-bps"),
		MaturityRedeemBps: v.GetUint64("maturity-redeem-fee-bps"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}

	if raw := v.GetString("maturity"); raw != "" {
		maturity, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse maturity: %w", err)
		}
		cfg.Maturity = maturity
	}

	return cfg, nil
}

// SourceParam returns one protocol-specific parameter, erroring when absent.
func (c Config) SourceParam(key string) (string, error) {
	val, ok := c.SourceParams[key]
	if !ok || val == "" {
		return "", fmt.Errorf("source param %q is required for source %q", key, c.Source)
	}
	return val, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
