package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"github.com/fourtytwo42/qhash/consensus/qpow"
	"github.com/fourtytwo42/qhash/crypto/qhash"
	"github.com/fourtytwo42/qhash/pkg/quantum"
	"github.com/fourtytwo42/qhash/pkg/utils"
)

// EnvPrefix prefixes environment overrides, e.g. QHASH_MINING_THREADS
const EnvPrefix = "QHASH"

// Network names
const (
	NetworkMain    = "main"
	NetworkRegtest = "regtest"
)

// Config represents the complete node configuration
type Config struct {
	Network   string          `json:"network" mapstructure:"network"` // "main" or "regtest"
	Mining    MiningConfig    `json:"mining" mapstructure:"mining"`
	Quantum   QuantumConfig   `json:"quantum" mapstructure:"quantum"`
	Consensus ConsensusConfig `json:"consensus" mapstructure:"consensus"`
	RPC       RPCConfig       `json:"rpc" mapstructure:"rpc"`
	Journal   JournalConfig   `json:"journal" mapstructure:"journal"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// MiningConfig contains mining-specific settings
type MiningConfig struct {
	Threads     int `json:"threads" mapstructure:"threads"`           // Number of mining threads
	StatsReport int `json:"stats_report" mapstructure:"stats_report"` // Statistics reporting interval (seconds)
}

// QuantumConfig contains simulation backend settings
type QuantumConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // Registered backend name
	Qubits  int    `json:"qubits" mapstructure:"qubits"`   // Number of qubits (fixed at 16)
	Layers  int    `json:"layers" mapstructure:"layers"`   // Circuit layers (fixed at 2)
}

// ConsensusConfig contains header validation settings
type ConsensusConfig struct {
	Workers   int `json:"workers" mapstructure:"workers"`       // Concurrent verifiers
	CacheSize int `json:"cache_size" mapstructure:"cache_size"` // Cached proof-of-work hashes
}

// RPCConfig contains JSON-RPC server settings
type RPCConfig struct {
	HTTPAddr string `json:"http_addr" mapstructure:"http_addr"` // Listen address, empty disables
}

// JournalConfig contains solution journal settings
type JournalConfig struct {
	Path string `json:"path" mapstructure:"path"` // leveldb directory, empty disables
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"` // "trace", "debug", "info", "warn", "error", "crit"
	Color bool   `json:"color" mapstructure:"color"` // Colored terminal output
}

// Default returns a default configuration
func Default() *Config {
	threads := utils.DefaultThreads()
	return &Config{
		Network: NetworkMain,
		Mining: MiningConfig{
			Threads:     threads,
			StatsReport: 30,
		},
		Quantum: QuantumConfig{
			Backend: quantum.DefaultBackend,
			Qubits:  qhash.NumQubits,
			Layers:  qhash.NumLayers,
		},
		Consensus: ConsensusConfig{
			Workers:   threads,
			CacheSize: 4096,
		},
		RPC: RPCConfig{
			HTTPAddr: "127.0.0.1:8645",
		},
		Journal: JournalConfig{
			Path: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads the configuration through v. Defaults are registered first,
// then filename (JSON, YAML or TOML by extension) if given, then QHASH_*
// environment variables and any flags already bound to v.
func Load(v *viper.Viper, filename string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every leaf of def under its dotted key so that
// AutomaticEnv can override keys that no file mentions.
func setDefaults(v *viper.Viper, def *Config) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to flatten defaults: %w", err)
	}
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]interface{}); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

// Save saves the configuration to a JSON file
func (c *Config) Save(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Network != NetworkMain && c.Network != NetworkRegtest {
		return fmt.Errorf("invalid network: %s (must be '%s' or '%s')", c.Network, NetworkMain, NetworkRegtest)
	}

	if c.Mining.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}
	if c.Mining.StatsReport < 0 {
		return fmt.Errorf("stats report interval cannot be negative")
	}

	if _, err := quantum.NewBackend(c.Quantum.Backend); err != nil {
		return fmt.Errorf("invalid quantum backend: %w", err)
	}
	if c.Quantum.Qubits != qhash.NumQubits {
		return fmt.Errorf("qubits must be %d for consensus compatibility", qhash.NumQubits)
	}
	if c.Quantum.Layers != qhash.NumLayers {
		return fmt.Errorf("layers must be %d for consensus compatibility", qhash.NumLayers)
	}

	if c.Consensus.Workers < 1 {
		return fmt.Errorf("consensus workers must be at least 1")
	}
	if c.Consensus.CacheSize < 1 {
		return fmt.Errorf("consensus cache size must be at least 1")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "crit":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// PowLimit returns the easiest target allowed on the configured network
func (c *Config) PowLimit() *uint256.Int {
	if c.Network == NetworkRegtest {
		return qpow.RegtestPowLimit
	}
	return qpow.MainPowLimit
}

// PowLimitBits returns the compact form of PowLimit
func (c *Config) PowLimitBits() uint32 {
	if c.Network == NetworkRegtest {
		return qpow.RegtestPowLimitBits
	}
	return qpow.MainPowLimitBits
}

// StatsInterval returns the miner reporting period
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Mining.StatsReport) * time.Second
}

// EngineConfig returns the validation engine settings
func (c *Config) EngineConfig() qpow.Config {
	return qpow.Config{
		PowLimit:  c.PowLimit(),
		Workers:   c.Consensus.Workers,
		CacheSize: c.Consensus.CacheSize,
	}
}

// Print prints the configuration in a human-readable format
func (c *Config) Print() {
	fmt.Println("📋 Current Configuration:")
	fmt.Printf("  Network: %s\n", c.Network)
	fmt.Printf("  Mining Threads: %d\n", c.Mining.Threads)
	fmt.Printf("  Quantum Backend: %s\n", c.Quantum.Backend)
	fmt.Printf("  Qubits: %d\n", c.Quantum.Qubits)
	fmt.Printf("  Layers: %d\n", c.Quantum.Layers)
	fmt.Printf("  Verify Workers: %d\n", c.Consensus.Workers)
	fmt.Printf("  PoW Cache: %d\n", c.Consensus.CacheSize)
	if c.RPC.HTTPAddr != "" {
		fmt.Printf("  RPC: http://%s\n", c.RPC.HTTPAddr)
	}
	if c.Journal.Path != "" {
		fmt.Printf("  Journal: %s\n", c.Journal.Path)
	}
	fmt.Printf("  Log Level: %s\n", c.Logging.Level)
}
