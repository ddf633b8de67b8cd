// Package config provides the file/flag-driven configuration surface for a
// running slab, in the shape of the teacher's cfg.MempoolConfig pattern:
// test/fuzz/mempool/checktx.go calls config.DefaultMempoolConfig() and
// mempool/reactor.go takes a *cfg.MempoolConfig off a config package by the
// same import alias. No example repo in the retrieved set carries an actual
// config package source file (celestia-core's retrieval was filtered down
// to mempool/p2p/test), so the viper+toml loader shape here follows the
// well-known tendermint-family convention the go.mod dependency set (
// github.com/spf13/viper, github.com/BurntSushi/toml) implies, rather than
// a specific grounded file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// SlabConfig tunes the local slab (spec.md §9 MinResidents default, §4.I
// transport bind address, §6 storage backend choice).
type SlabConfig struct {
	// MinResidents is the replication floor dispatch peering remediation
	// pushes toward (spec.md §9: "min_residents defaults to 3").
	MinResidents int `mapstructure:"min_residents" toml:"min_residents"`
	// ListenAddr is the UDP bind address for the slab's transport.
	ListenAddr string `mapstructure:"listen_addr" toml:"listen_addr"`
	// DBBackend selects a tm-db backend: "memdb", "goleveldb", "boltdb", or
	// "badgerdb" (spec.md §6: "a drop-in persistent backend").
	DBBackend string `mapstructure:"db_backend" toml:"db_backend"`
	// DBDir is where the chosen backend persists data; ignored for memdb.
	DBDir string `mapstructure:"db_dir" toml:"db_dir"`
	// QueueDepth is read from the config file, but `unbase run` does not pass
	// it to the slab; the dispatcher's event channel keeps its default depth
	// of 1024.
	QueueDepth int `mapstructure:"queue_depth" toml:"queue_depth"`
}

// RPCConfig tunes the debug HTTP+websocket surface (spec.md §6
// "/health, /status, /subscribe").
type RPCConfig struct {
	ListenAddr string `mapstructure:"listen_addr" toml:"listen_addr"`
}

// LogConfig holds logger settings. Level is read from the config file, but
// `unbase run` does not apply it: the logger emits every level.
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
}

// Config is the top-level TOML document (spec.md's ambient "Configuration"
// section).
type Config struct {
	Slab SlabConfig `mapstructure:"slab" toml:"slab"`
	RPC  RPCConfig  `mapstructure:"rpc" toml:"rpc"`
	Log  LogConfig  `mapstructure:"log" toml:"log"`
}

// DefaultConfig mirrors the call-site shape of the teacher's
// config.DefaultMempoolConfig().
func DefaultConfig() *Config {
	return &Config{
		Slab: SlabConfig{
			MinResidents: 3,
			ListenAddr:   "0.0.0.0:26680",
			DBBackend:    "memdb",
			DBDir:        "unbase_data",
			QueueDepth:   1024,
		},
		RPC: RPCConfig{
			ListenAddr: "127.0.0.1:26681",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML config file at path, overlaying it onto DefaultConfig
// so an absent or partial file still yields a usable configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefaultConfigFile writes cfg to path as TOML, creating parent
// directories that don't yet exist. Used by `unbase init`.
func WriteDefaultConfigFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encoding %s: %w", path, err)
	}
	return nil
}
