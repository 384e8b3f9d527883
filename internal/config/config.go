// Package config defines the flag + environment layered configuration
// shared by every boki binary.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Config holds the flags common across boki's node roles. Not every
// binary uses every field (e.g. cmd/gateway ignores StorageBackend);
// each cmd package defines its own flags, reusing this struct as the
// shared value and layering environment overrides with
// ApplyEnvOverrides.
type Config struct {
	// Per-role network surfaces.
	EngineConnPort int
	HTTPPort       int
	GRPCPort       int

	// Gateway.
	FuncConfigFile string

	// Storage.
	StorageBackend           string // "mem", "lsm" (alias "rocksdb"), or "tree" (aliases "hashdbm", "treedbm", "skipdbm")
	StorageDataDir           string
	RocksDBMaxBackgroundJobs int
	RocksDBEnableCompression bool

	// Common to every node role.
	ListenAddr           string
	Hostname             string
	NumIOWorkers         int
	MessageConnPerWorker int
	SocketListenBacklog  int
	TCPEnableNoDelay     bool
	TCPEnableKeepAlive   bool

	// Coordination-service address for persisted cluster state; the
	// ZK client itself is out of scope, see internal/logstore.ViewSource.
	ZookeeperHost     string
	ZookeeperRootPath string
}

// DefineFlags registers every flag on the default flag.CommandLine
// and returns the Config they populate. Call flag.Parse() separately
// once all binaries' flags (and any of their own) are defined.
func DefineFlags() *Config {
	c := &Config{}
	flag.IntVar(&c.EngineConnPort, "engine_conn_port", 10007, "gateway port engines connect to for FUNC_CALL traffic")
	flag.IntVar(&c.HTTPPort, "http_port", 8080, "gateway HTTP listen port")
	flag.IntVar(&c.GRPCPort, "grpc_port", 8081, "gateway gRPC listen port")
	flag.StringVar(&c.FuncConfigFile, "func_config_file", "", "path to the function configuration JSON file")

	flag.StringVar(&c.StorageBackend, "storage_backend", "mem", "storage backend: mem, lsm (or rocksdb), or tree (or hashdbm, treedbm, skipdbm)")
	flag.StringVar(&c.StorageDataDir, "storage_datadir", "/tmp/boki-storage", "data directory for the storage backend")
	flag.IntVar(&c.RocksDBMaxBackgroundJobs, "rocksdb_max_background_jobs", 4, "max background compaction/flush jobs (lsm backend)")
	flag.BoolVar(&c.RocksDBEnableCompression, "rocksdb_enable_compression", true, "enable block compression (lsm backend)")

	flag.StringVar(&c.ListenAddr, "listen_addr", "0.0.0.0", "address to bind listening sockets to")
	flag.StringVar(&c.Hostname, "hostname", "", "advertised hostname for peer connections; defaults to os.Hostname()")
	flag.IntVar(&c.NumIOWorkers, "num_io_workers", 4, "number of IO-worker goroutines handling connection traffic")
	flag.IntVar(&c.MessageConnPerWorker, "message_conn_per_worker", 256, "expected connections per IO worker, sized for internal buffering")
	flag.IntVar(&c.SocketListenBacklog, "socket_listen_backlog", 1024, "listen() backlog size")
	flag.BoolVar(&c.TCPEnableNoDelay, "tcp_enable_nodelay", true, "disable Nagle's algorithm on accepted connections")
	flag.BoolVar(&c.TCPEnableKeepAlive, "tcp_enable_keepalive", true, "enable TCP keepalive on accepted connections")

	flag.StringVar(&c.ZookeeperHost, "zookeeper_host", "", "address of the ZooKeeper ensemble the coordination service watches")
	flag.StringVar(&c.ZookeeperRootPath, "zookeeper_root_path", "/boki", "root znode path for this deployment")
	return c
}

// envOverrides lists the BOKI_* environment variables that override
// their matching flag when set, applied after flag.Parse() so a flag
// default isn't mistaken for an explicit override.
var envOverrides = []struct {
	name  string
	apply func(c *Config, val string) error
}{
	{"BOKI_ENGINE_CONN_PORT", intOverride(func(c *Config) *int { return &c.EngineConnPort })},
	{"BOKI_HTTP_PORT", intOverride(func(c *Config) *int { return &c.HTTPPort })},
	{"BOKI_GRPC_PORT", intOverride(func(c *Config) *int { return &c.GRPCPort })},
	{"BOKI_FUNC_CONFIG_FILE", strOverride(func(c *Config) *string { return &c.FuncConfigFile })},
	{"BOKI_STORAGE_BACKEND", strOverride(func(c *Config) *string { return &c.StorageBackend })},
	{"BOKI_STORAGE_DATADIR", strOverride(func(c *Config) *string { return &c.StorageDataDir })},
	{"BOKI_LISTEN_ADDR", strOverride(func(c *Config) *string { return &c.ListenAddr })},
	{"BOKI_HOSTNAME", strOverride(func(c *Config) *string { return &c.Hostname })},
	{"BOKI_ZOOKEEPER_HOST", strOverride(func(c *Config) *string { return &c.ZookeeperHost })},
	{"BOKI_ZOOKEEPER_ROOT_PATH", strOverride(func(c *Config) *string { return &c.ZookeeperRootPath })},
}

func intOverride(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func strOverride(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, val string) error {
		*field(c) = val
		return nil
	}
}

// ApplyEnvOverrides layers BOKI_* environment variables on top of c's
// already-parsed flag values.
func (c *Config) ApplyEnvOverrides() error {
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(c, val); err != nil {
			return fmt.Errorf("config: invalid %s=%q: %w", o.name, val, err)
		}
	}
	return nil
}

// ResolveHostname returns Hostname if set, otherwise os.Hostname().
func (c *Config) ResolveHostname() (string, error) {
	if c.Hostname != "" {
		return c.Hostname, nil
	}
	return os.Hostname()
}
