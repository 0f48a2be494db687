package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
// Every component receives its slice of this struct explicitly; nothing reads
// configuration from package-level state.
type Config struct {
	Server    ServerConfig
	Arbitrage ArbitrageConfig
	Advisor   AdvisorConfig
	Bridge    BridgeConfig
	Database  DatabaseConfig
	Chains    map[string]ChainConfig
}

// ServerConfig defines the HTTP/WebSocket listener settings.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ArbitrageConfig defines thresholds for the simulation and decision pipeline.
type ArbitrageConfig struct {
	PrimaryChain   string `mapstructure:"primary_chain"`
	SecondaryChain string `mapstructure:"secondary_chain"`
	FeeTier        uint32 `mapstructure:"fee_tier"`

	MinProfitUsd     float64 `mapstructure:"min_profit_usd"`
	MaxSpreadPercent float64 `mapstructure:"max_spread_percent"`
	MinSpreadPercent float64 `mapstructure:"min_spread_percent"`

	StreamIntervalSeconds int `mapstructure:"stream_interval_seconds"`
}

// StreamInterval returns the push interval for the live price feed.
func (a ArbitrageConfig) StreamInterval() time.Duration {
	return time.Duration(a.StreamIntervalSeconds) * time.Second
}

// AdvisorConfig defines the advisory model endpoint. The advisor is strictly
// optional: any failure falls back to the rule-based decision path.
type AdvisorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Timeout returns the advisory call budget.
func (a AdvisorConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// BridgeConfig defines the bridge fee-quoting service.
type BridgeConfig struct {
	QuoteEndpoint  string `mapstructure:"quote_endpoint"`
	FallbackFeeBps int    `mapstructure:"fallback_fee_bps"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
}

// Timeout returns the bridge quote call budget.
func (b BridgeConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// DatabaseConfig defines the audit-log database connection settings.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN builds the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// TokenConfig identifies one ERC-20 token on a chain.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals int    `mapstructure:"decimals"`
}

// ChainConfig defines one venue chain: its RPC endpoint and the contract
// addresses the reader and settlement client need.
type ChainConfig struct {
	RPCEndpoint       string      `mapstructure:"rpc_endpoint"`
	ChainID           uint64      `mapstructure:"chain_id"`
	FactoryAddress    string      `mapstructure:"factory_address"`
	QuoterAddress     string      `mapstructure:"quoter_address"`
	SettlementAddress string      `mapstructure:"settlement_address"`
	BaseToken         TokenConfig `mapstructure:"base_token"`
	PrimaryStable     TokenConfig `mapstructure:"primary_stable"`
	SecondaryStable   TokenConfig `mapstructure:"secondary_stable"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.listen_addr", ":8080")
	viper.SetDefault("arbitrage.min_profit_usd", 2.0)
	viper.SetDefault("arbitrage.max_spread_percent", 5.0)
	viper.SetDefault("arbitrage.min_spread_percent", 0.1)
	viper.SetDefault("arbitrage.fee_tier", 3000)
	viper.SetDefault("arbitrage.stream_interval_seconds", 10)
	viper.SetDefault("advisor.timeout_ms", 5000)
	viper.SetDefault("bridge.fallback_fee_bps", 10)
	viper.SetDefault("bridge.timeout_ms", 5000)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.Arbitrage.PrimaryChain == "" || config.Arbitrage.SecondaryChain == "" {
		err = fmt.Errorf("config: primary_chain and secondary_chain are required")
		return
	}
	for _, name := range []string{config.Arbitrage.PrimaryChain, config.Arbitrage.SecondaryChain} {
		if _, ok := config.Chains[name]; !ok {
			err = fmt.Errorf("config: chain %q referenced but not defined", name)
			return
		}
	}
	return
}
