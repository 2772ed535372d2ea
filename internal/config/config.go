package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/maxmcd/nodehome/internal/fulcrum"
	"github.com/maxmcd/nodehome/internal/logger"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// Config is read once at startup and passed by value after that, nothing
// reads the environment at request time.
type Config struct {
	AppTitle string  `toml:"app_title"`
	AppPort  int     `toml:"app_port"`
	Bitcoin  Bitcoin `toml:"bitcoin"`
	Fulcrum  Fulcrum `toml:"fulcrum"`
	Dojo     Dojo    `toml:"dojo"`
	Mempool  Service `toml:"mempool"`
	Robosats Service `toml:"robosats"`
	Monero   Monero  `toml:"monero"`
}

type Bitcoin struct {
	RPCHost  string `toml:"rpc_host"`
	RPCPort  int    `toml:"rpc_port"`
	RPCUser  string `toml:"rpc_user"`
	RPCPass  string `toml:"rpc_pass"`
	P2POnion string `toml:"p2p_onion"`
	P2PPort  int    `toml:"p2p_port"`
}

type Fulcrum struct {
	BackendHost  string `toml:"backend_host"`
	TCPPort      int    `toml:"tcp_port"`
	SSLPort      int    `toml:"ssl_port"`
	LocalAddress string `toml:"local_address"`
	OnionTCP     string `toml:"onion_tcp"`
	OnionSSL     string `toml:"onion_ssl"`
	UseSSL       bool   `toml:"use_ssl"`
	TLSInsecure  bool   `toml:"tls_insecure"`
	StatsEnabled bool   `toml:"stats_enabled"`
	TailPath     string `toml:"tail_path"`
	TailLines    int    `toml:"tail_lines"`
	Version      string `toml:"version"`
}

// Source is the part of the Fulcrum config the log tail inference needs.
func (f Fulcrum) Source() fulcrum.Source {
	return fulcrum.Source{
		TailPath:     f.TailPath,
		TailLines:    f.TailLines,
		StatsEnabled: f.StatsEnabled,
		Version:      f.Version,
	}
}

// BackendPort is the electrum port the dashboard itself connects to.
func (f Fulcrum) BackendPort() int {
	if f.UseSSL {
		return f.SSLPort
	}
	return f.TCPPort
}

type Service struct {
	Clearnet string `toml:"clearnet"`
	Onion    string `toml:"onion"`
}

type Monero struct {
	Onion   string `toml:"onion"`
	RPCPort int    `toml:"rpc_port"`
}

func Default() Config {
	return Config{
		AppTitle: "Bitcoin Node",
		AppPort:  8088,
		Bitcoin: Bitcoin{
			RPCHost: "127.0.0.1",
			RPCPort: 8332,
			P2PPort: 8333,
		},
		Fulcrum: Fulcrum{
			BackendHost:  "127.0.0.1",
			TCPPort:      50001,
			SSLPort:      50002,
			LocalAddress: "hostname.local",
			StatsEnabled: true,
			TailPath:     "/app/fulcrum_tail.log",
			TailLines:    100,
		},
		Dojo: Dojo{
			Version: DefaultDojoVersion,
		},
		Monero: Monero{RPCPort: 18089},
	}
}

// Load builds a Config from defaults, then the TOML file at path (if path
// isn't empty), then environment variables found with lookup.
func Load(path string, lookup func(string) (string, bool)) (cfg Config, err error) {
	cfg = Default()
	if path != "" {
		if _, err = toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "error decoding %q", path)
		}
	}
	if err = applyEnv(&cfg, env{lookup: lookup}); err != nil {
		return cfg, err
	}
	cfg.Dojo.MaintenanceURL = ensureHTTP(cfg.Dojo.MaintenanceURL)
	cfg.Dojo.finalize(cfg.Mempool.Onion)
	if err = cfg.Validate(); err != nil {
		return cfg, err
	}
	warnVersion("FULCRUM_VERSION", cfg.Fulcrum.Version)
	warnVersion("DOJO_VERSION", cfg.Dojo.Version)
	return cfg, nil
}

// FromEnvironment is Load with os.LookupEnv.
func FromEnvironment(path string) (Config, error) {
	return Load(path, os.LookupEnv)
}

func (cfg Config) Validate() error {
	for _, p := range []struct {
		name string
		port int
	}{
		{"APP_PORT", cfg.AppPort},
		{"BITCOIN_RPC_PORT", cfg.Bitcoin.RPCPort},
		{"BITCOIN_P2P_PORT", cfg.Bitcoin.P2PPort},
		{"FULCRUM_TCP_PORT", cfg.Fulcrum.TCPPort},
		{"FULCRUM_SSL_PORT", cfg.Fulcrum.SSLPort},
		{"MONERO_RPC_PORT", cfg.Monero.RPCPort},
	} {
		if p.port < 1 || p.port > 65535 {
			return errors.Errorf("%s must be between 1 and 65535, got %d", p.name, p.port)
		}
	}
	if cfg.Fulcrum.TailLines < 1 {
		return errors.Errorf("FULCRUM_TAIL_LINES must be positive, got %d", cfg.Fulcrum.TailLines)
	}
	return nil
}

// Redacted returns a copy that's safe to print.
func (cfg Config) Redacted() Config {
	if cfg.Bitcoin.RPCPass != "" {
		cfg.Bitcoin.RPCPass = "<redacted>"
	}
	if cfg.Dojo.APIKey != "" {
		cfg.Dojo.APIKey = "<redacted>"
	}
	cfg.Dojo.RawJSON = ""
	return cfg
}

func warnVersion(name, v string) {
	if v == "" {
		return
	}
	if !semver.IsValid("v" + strings.TrimPrefix(v, "v")) {
		logger.Warnw("version is not a semantic version", "var", name, "value", v)
	}
}

type env struct {
	lookup func(string) (string, bool)
}

// get treats set-but-blank variables as unset so they don't clobber values
// from the config file.
func (e env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e env) str(dst *string, keys ...string) {
	for _, key := range keys {
		if v, ok := e.get(key); ok {
			*dst = v
			return
		}
	}
}

func (e env) integer(dst *int, key string) error {
	v, ok := e.get(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return errors.Errorf("%s must be an integer, got %q", key, v)
	}
	*dst = i
	return nil
}

func (e env) boolean(dst *bool, key string) {
	if v, ok := e.get(key); ok {
		*dst = parseBool(v)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func applyEnv(cfg *Config, e env) error {
	e.str(&cfg.AppTitle, "APP_TITLE")

	e.str(&cfg.Bitcoin.RPCHost, "BITCOIN_RPC_HOST")
	e.str(&cfg.Bitcoin.RPCUser, "BITCOIN_RPC_USER")
	e.str(&cfg.Bitcoin.RPCPass, "BITCOIN_RPC_PASS")
	e.str(&cfg.Bitcoin.P2POnion, "BITCOIN_P2P_ONION")

	e.str(&cfg.Fulcrum.BackendHost, "FULCRUM_BACKEND_HOST")
	e.str(&cfg.Fulcrum.LocalAddress, "FULCRUM_LOCAL_ADDRESS")
	e.str(&cfg.Fulcrum.OnionTCP, "FULCRUM_ONION_TCP")
	e.str(&cfg.Fulcrum.OnionSSL, "FULCRUM_ONION_SSL")
	e.boolean(&cfg.Fulcrum.UseSSL, "FULCRUM_USE_SSL")
	e.boolean(&cfg.Fulcrum.TLSInsecure, "FULCRUM_TLS_INSECURE")
	e.boolean(&cfg.Fulcrum.StatsEnabled, "FULCRUM_STATS")
	e.str(&cfg.Fulcrum.TailPath, "FULCRUM_TAIL_PATH")
	e.str(&cfg.Fulcrum.Version, "FULCRUM_VERSION")

	e.str(&cfg.Dojo.RawJSON, "DOJO_RAW_JSON")
	e.str(&cfg.Dojo.APIKey, "DOJO_APIKEY")
	e.str(&cfg.Dojo.URL, "DOJO_URL")
	e.str(&cfg.Dojo.Version, "DOJO_VERSION")
	e.str(&cfg.Dojo.ExplorerURL, "EXPLORER_URL")
	e.str(&cfg.Dojo.MaintenanceURL, "DOJO_MAINTENANCE_URL")

	e.str(&cfg.Mempool.Clearnet, "MEMPOOL_CLEARNET", "MEMPOOL_LOCAL")
	e.str(&cfg.Mempool.Onion, "MEMPOOL_ONION")
	e.str(&cfg.Robosats.Clearnet, "ROBOSATS_CLEARNET", "ROBOSATS_LOCAL")
	e.str(&cfg.Robosats.Onion, "ROBOSATS_ONION")
	e.str(&cfg.Monero.Onion, "MONERO_ONION")

	for _, i := range []struct {
		dst *int
		key string
	}{
		{&cfg.AppPort, "APP_PORT"},
		{&cfg.Bitcoin.RPCPort, "BITCOIN_RPC_PORT"},
		{&cfg.Bitcoin.P2PPort, "BITCOIN_P2P_PORT"},
		{&cfg.Fulcrum.TCPPort, "FULCRUM_TCP_PORT"},
		{&cfg.Fulcrum.SSLPort, "FULCRUM_SSL_PORT"},
		{&cfg.Fulcrum.TailLines, "FULCRUM_TAIL_LINES"},
		{&cfg.Monero.RPCPort, "MONERO_RPC_PORT"},
	} {
		if err := e.integer(i.dst, i.key); err != nil {
			return err
		}
	}
	return nil
}
