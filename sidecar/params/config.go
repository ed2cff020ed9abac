// Package params defines the sidecar's on-disk configuration: YAML-tagged
// structs in the style of shared/params/network_config.go, with defaults
// baked in as a package-level var and validated against the same invariants
// the original stealth-sidecar config enforced.
package params

import (
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/fileutil"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// MaxExtraSubnetsPerEpoch bounds Config.ExtraSubnetsPerEpoch.
const MaxExtraSubnetsPerEpoch = 32

// MinFriendNodes is the fewest friends the k-anonymity set can tolerate.
const MinFriendNodes = 3

// FriendNodeConfig describes one configured friend relay peer.
type FriendNodeConfig struct {
	StableID        string `yaml:"stable_id"`
	TransportAddress string `yaml:"transport_address"`
	AuthPublicKey    string `yaml:"auth_public_key"`
}

// RlnConfig configures the RLN-capable pub/sub provider the friend relay
// talks to.
type RlnConfig struct {
	RpcURL              string `yaml:"rpc_url"`
	RlnContractAddress  string `yaml:"rln_contract_address,omitempty"`
	RateLimitPerEpoch   uint32 `yaml:"rate_limit_per_epoch"`
}

// MetricsConfig configures the Prometheus HTTP exposition.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	ListenPort    uint16 `yaml:"listen_port"`
}

// NetworkConfig configures the sidecar's own listening address, independent
// of whatever address the host gossip engine binds.
type NetworkConfig struct {
	ListenPort uint16 `yaml:"listen_port"`
	ExternalIP string `yaml:"external_ip,omitempty"`
}

// Config is the complete sidecar configuration, loaded from YAML.
type Config struct {
	ProviderHTTPAPI      string             `yaml:"provider_http_api"`
	ValidatorPubkey      string             `yaml:"validator_pubkey"`
	ExtraSubnetsPerEpoch uint32             `yaml:"extra_subnets_per_epoch"`
	FriendNodes          []FriendNodeConfig `yaml:"friend_nodes"`
	Rln                  RlnConfig          `yaml:"rln"`
	Metrics              MetricsConfig      `yaml:"metrics"`
	Network              NetworkConfig      `yaml:"network"`
	UseSnappyCompression bool               `yaml:"use_snappy_compression"`
	SeenCacheSize        int                `yaml:"seen_cache_size"`
	SeenCacheTTL         time.Duration      `yaml:"seen_cache_ttl"`
	HealthCheckInterval  time.Duration      `yaml:"health_check_interval"`
}

var defaultConfig = &Config{
	ProviderHTTPAPI:      "http://localhost:5052",
	ExtraSubnetsPerEpoch: 8,
	Rln: RlnConfig{
		RpcURL:            "http://localhost:8545",
		RateLimitPerEpoch: 100,
	},
	Metrics: MetricsConfig{
		Enabled:       true,
		ListenAddress: "127.0.0.1",
		ListenPort:    9090,
	},
	Network: NetworkConfig{
		ListenPort: 9000,
	},
	UseSnappyCompression: true,
	SeenCacheSize:        1000,
	SeenCacheTTL:         5 * time.Minute,
	HealthCheckInterval:  30 * time.Second,
}

// Default returns a copy of the baked-in default configuration.
func Default() *Config {
	cfg := *defaultConfig
	return &cfg
}

// Load reads and parses a YAML config file at path, applying defaults for
// any zero-valued field left unset by the file. A missing file at path is
// not an error: Load falls back to Default() so a first run with no
// configuration file yet still starts.
func Load(path string) (*Config, error) {
	expanded, err := fileutil.ExpandPath(path)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, err, "expand config path")
	}
	if !fileutil.FileExists(expanded) {
		return Default(), nil
	}
	raw, err := ioutil.ReadFile(expanded)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, err, "read config file")
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, types.Wrap(types.KindConfig, err, "parse config file")
	}
	return cfg, nil
}

// Validate enforces the invariants a running sidecar cannot safely violate.
func (c *Config) Validate() error {
	if c.ExtraSubnetsPerEpoch > MaxExtraSubnetsPerEpoch {
		return types.Wrap(types.KindConfig, types.ErrTooManyExtraSubnets, "")
	}
	if len(c.FriendNodes) < MinFriendNodes {
		return types.Wrap(types.KindConfig, types.ErrTooFewFriends, "")
	}
	if c.Rln.RateLimitPerEpoch == 0 {
		return types.Newf(types.KindConfig, "rln rate_limit_per_epoch must be positive")
	}
	for _, f := range c.FriendNodes {
		if _, err := types.NewFriendRecord(f.StableID, f.TransportAddress, f.AuthPublicKey); err != nil {
			return err
		}
	}
	return nil
}

// Friends parses FriendNodes into validated FriendRecords.
func (c *Config) Friends() ([]types.FriendRecord, error) {
	out := make([]types.FriendRecord, 0, len(c.FriendNodes))
	for _, f := range c.FriendNodes {
		rec, err := types.NewFriendRecord(f.StableID, f.TransportAddress, f.AuthPublicKey)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
