// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Family identifies the address family a listener binds.
type Family string

const (
	// FamilyIPv4 binds an IPv4 socket.
	FamilyIPv4 Family = "ipv4"
	// FamilyIPv6 binds an IPv6 socket.
	FamilyIPv6 Family = "ipv6"
)

// Config is the master configuration for the audit-log server.
type Config struct {
	// Listeners is the ordered list of bind endpoints. At least one is
	// required; each is tried independently at startup, and a
	// configuration that produces zero usable listeners is a fatal
	// configuration error.
	Listeners []ListenerConfig `yaml:"listeners"`

	// TCPKeepAlive enables SO_KEEPALIVE on accepted connections.
	TCPKeepAlive bool `yaml:"tcp_keepalive"`

	// ServerTimeout bounds write-queue drain on terminal states and
	// read/write deadlines generally.
	ServerTimeout time.Duration `yaml:"server_timeout"`

	// TLSVerifyPeer enables TLS client certificate/hostname validation.
	// Has no effect on listeners with tls: false.
	TLSVerifyPeer bool `yaml:"tls_verify_peer"`

	// TLSCertFile and TLSKeyFile configure the server's own certificate
	// for listeners with tls: true.
	TLSCertFile string `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `yaml:"tls_key_file,omitempty"`

	// Relay is the ordered list of upstream relay endpoints. Empty
	// means sessions are persisted locally only.
	Relay []RelayEndpoint `yaml:"relay,omitempty"`

	// StoreFirst, when true and a relay is configured, journals the
	// full client stream to disk before replaying it to the relay
	// rather than forwarding live.
	StoreFirst bool `yaml:"store_first"`

	// IOLogMode is the file mode applied to created I/O log directories
	// and files (octal, e.g. 0600).
	IOLogMode os.FileMode `yaml:"iolog_mode"`

	// IOLogDir is the root directory under which per-session I/O log
	// directories are created.
	IOLogDir string `yaml:"iolog_dir"`

	// EventLogDir is the root directory under which per-session event
	// log files are created. Kept separate from IOLogDir because a
	// rejected invocation gets an event log entry with no I/O log
	// directory at all.
	EventLogDir string `yaml:"event_log_dir"`

	// EventLogMode is the file mode applied to created event log files.
	EventLogMode os.FileMode `yaml:"event_log_mode"`

	// JournalDir is the root directory under which per-connection
	// journal files are created for store-first mode.
	JournalDir string `yaml:"journal_dir"`

	// PIDFile is the path to the pid file written at startup.
	PIDFile string `yaml:"pid_file"`

	// DebugAddr is the host:port the Prometheus debug endpoint binds,
	// the analogue of the original's libevent "debug" instance
	// (§4.8/§11: "reload tears down and recreates it against the new
	// configuration's debug bind address"). Empty disables the
	// endpoint.
	DebugAddr string `yaml:"debug_addr,omitempty"`

	// RandomDropProbability is a 0.0-1.0 probability that an inbound
	// I/O buffer message is dropped, closing the connection. A
	// debugging aid for exercising client restart; zero disables it.
	// Set from the command line as a percentage (-R 25 means 0.25
	// here).
	RandomDropProbability float64 `yaml:"random_drop_probability,omitempty"`
}

// ListenerConfig describes one bind endpoint.
type ListenerConfig struct {
	Family  Family `yaml:"family"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	TLS     bool   `yaml:"tls"`
}

// RelayEndpoint describes one upstream relay target. Endpoints are
// tried in order; the first that completes a connection is used.
type RelayEndpoint struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	TLS     bool   `yaml:"tls"`
}

// Default returns the default configuration: a single plaintext IPv4
// listener on port 8675 (sudo's assigned logsrvd default), no relay,
// local-only persistence.
//
// These defaults exist to ensure every field has a sensible zero value
// before the config file is merged in, not as a fallback — a deployed
// instance always loads an explicit file via [Load] or [LoadFile].
func Default() *Config {
	return &Config{
		Listeners: []ListenerConfig{
			{Family: FamilyIPv4, Address: "0.0.0.0", Port: 8675, TLS: false},
		},
		TCPKeepAlive:  true,
		ServerTimeout: 30 * time.Second,
		TLSVerifyPeer: true,
		StoreFirst:    false,
		IOLogMode:     0600,
		IOLogDir:      "/var/log/sudo-io",
		EventLogDir:   "/var/log/sudo-io",
		EventLogMode:  0600,
		JournalDir:    "/var/lib/sudo-io-journal",
		PIDFile:       "/var/run/sudo-io-relay.pid",
	}
}

// Load loads configuration from the AUDITD_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or automatic discovery — if AUDITD_CONFIG is
// not set, this fails. That keeps configuration deterministic and
// auditable: nothing is silently picked up from a well-known location.
func Load() (*Config, error) {
	configPath := os.Getenv("AUDITD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AUDITD_CONFIG environment variable not set; " +
			"set it to the path of your server config file, or use --file")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, the
// implementation behind the -f/--file flag.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Default() supplies the default listener; a file that omits
	// "listeners" entirely should not silently clear it, so decode into
	// a shadow value and merge rather than unmarshal directly into c
	// when the field is absent.
	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(fromFile.Listeners) > 0 {
		c.Listeners = fromFile.Listeners
	}
	c.TCPKeepAlive = fromFile.TCPKeepAlive
	if fromFile.ServerTimeout > 0 {
		c.ServerTimeout = fromFile.ServerTimeout
	}
	c.TLSVerifyPeer = fromFile.TLSVerifyPeer
	if fromFile.TLSCertFile != "" {
		c.TLSCertFile = fromFile.TLSCertFile
	}
	if fromFile.TLSKeyFile != "" {
		c.TLSKeyFile = fromFile.TLSKeyFile
	}
	if len(fromFile.Relay) > 0 {
		c.Relay = fromFile.Relay
	}
	c.StoreFirst = fromFile.StoreFirst
	if fromFile.IOLogMode != 0 {
		c.IOLogMode = fromFile.IOLogMode
	}
	if fromFile.IOLogDir != "" {
		c.IOLogDir = fromFile.IOLogDir
	}
	if fromFile.EventLogDir != "" {
		c.EventLogDir = fromFile.EventLogDir
	}
	if fromFile.EventLogMode != 0 {
		c.EventLogMode = fromFile.EventLogMode
	}
	if fromFile.JournalDir != "" {
		c.JournalDir = fromFile.JournalDir
	}
	if fromFile.PIDFile != "" {
		c.PIDFile = fromFile.PIDFile
	}
	if fromFile.DebugAddr != "" {
		c.DebugAddr = fromFile.DebugAddr
	}
	if fromFile.RandomDropProbability != 0 {
		c.RandomDropProbability = fromFile.RandomDropProbability
	}

	return nil
}

// expandVariables expands ${HOME} and ${VAR:-default} patterns in path
// fields for portability across deployments.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.IOLogDir = expandVars(c.IOLogDir, vars)
	c.EventLogDir = expandVars(c.EventLogDir, vars)
	c.JournalDir = expandVars(c.JournalDir, vars)
	c.PIDFile = expandVars(c.PIDFile, vars)
	c.TLSCertFile = expandVars(c.TLSCertFile, vars)
	c.TLSKeyFile = expandVars(c.TLSKeyFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors that should prevent the
// server from starting. A configuration with zero usable listeners is
// the one case the core treats as a fatal configuration error (§7).
func (c *Config) Validate() error {
	var errs []error

	if len(c.Listeners) == 0 {
		errs = append(errs, fmt.Errorf("at least one listener is required"))
	}

	for i, l := range c.Listeners {
		if l.Family != FamilyIPv4 && l.Family != FamilyIPv6 {
			errs = append(errs, fmt.Errorf("listeners[%d]: invalid family %q", i, l.Family))
		}
		if l.Port <= 0 || l.Port > 65535 {
			errs = append(errs, fmt.Errorf("listeners[%d]: invalid port %d", i, l.Port))
		}
		if l.Address != "" && net.ParseIP(l.Address) == nil {
			errs = append(errs, fmt.Errorf("listeners[%d]: invalid address %q", i, l.Address))
		}
		if l.TLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
			errs = append(errs, fmt.Errorf("listeners[%d]: tls enabled but tls_cert_file/tls_key_file not set", i))
		}
	}

	for i, r := range c.Relay {
		if r.Address == "" {
			errs = append(errs, fmt.Errorf("relay[%d]: address is required", i))
		}
		if r.Port <= 0 || r.Port > 65535 {
			errs = append(errs, fmt.Errorf("relay[%d]: invalid port %d", i, r.Port))
		}
	}

	if c.StoreFirst && len(c.Relay) == 0 {
		errs = append(errs, fmt.Errorf("store_first requires at least one relay endpoint"))
	}

	if c.ServerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server_timeout must be positive"))
	}

	if c.RandomDropProbability < 0 || c.RandomDropProbability > 1 {
		errs = append(errs, fmt.Errorf("random_drop_probability must be within [0.0, 1.0]"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the I/O log, event log, and journal directories
// if they do not exist. The pid file's parent directory is not
// created.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.IOLogDir, c.EventLogDir, c.JournalDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// RandomDropFromPercent converts a command-line percentage (as taken
// by -R/--random-drop, e.g. "25" for 25%) into the 0.0-1.0 probability
// stored on Config, mirroring the original's strtod-then-divide-by-100
// conversion in its argument parser.
func RandomDropFromPercent(percent string) (float64, error) {
	value, err := strconv.ParseFloat(percent, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid -R/--random-drop value %q: %w", percent, err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("-R/--random-drop value %q out of range [0, 100]", percent)
	}
	return value / 100.0, nil
}
