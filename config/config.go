// Package config loads lucent's YAML configuration file into the typed
// structures the rest of the server consumes: file and template roots,
// listen address, optional TLS material, the route table, auth rules,
// and the limit overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/lucentsrv/lucent/internal/wire"
)

// RoutePattern is one (pattern, replacement) pair of the route table.
type RoutePattern struct {
	Pattern     string `koanf:"pattern"`
	Replacement string `koanf:"replacement"`
}

// AuthRule is one path-prefix protection rule. Credentials is the raw
// "user:hash;user:hash" string as read from the file; Users is populated
// by parseCredentials.
type AuthRule struct {
	PathPrefix  string            `koanf:"path_prefix"`
	Realm       string            `koanf:"realm"`
	Credentials string            `koanf:"credentials"`
	Users       map[string]string `koanf:"-"`
}

// TLS holds the optional server-certificate material.
type TLS struct {
	CertPath string `koanf:"cert_path"`
	KeyPath  string `koanf:"key_path"`
}

// Limits mirrors internal/wire.Limits plus the connection-level knobs,
// expressed as config overrides; zero values fall back to the defaults.
type Limits struct {
	MaxURILen          int64 `koanf:"max_uri_len"`
	MaxHeadersBytes    int64 `koanf:"max_headers_bytes"`
	MaxHeadersCount    int64 `koanf:"max_headers_count"`
	MaxBodyLen         int64 `koanf:"max_body_len"`
	MaxRanges          int   `koanf:"max_ranges"`
	MaxConnections     int64 `koanf:"max_connections"`
	MaxRequestsPerConn int   `koanf:"max_requests_per_conn"`
	IdleTimeoutSec     int   `koanf:"idle_timeout_sec"`
	ShutdownGraceSec   int   `koanf:"shutdown_grace_sec"`
	CGITimeoutSec      int   `koanf:"cgi_timeout_sec"`
}

// Config is the fully decoded configuration document.
type Config struct {
	FileRoot     string         `koanf:"file_root"`
	TemplateRoot string         `koanf:"template_root"`
	Address      string         `koanf:"address"`
	TLS          *TLS           `koanf:"tls"`
	RoutingTable []RoutePattern `koanf:"routing_table"`
	AuthRules    []AuthRule     `koanf:"auth_rules"`
	Limits       Limits         `koanf:"limits"`
}

// Load reads and validates a YAML configuration file at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	for i := range cfg.AuthRules {
		users, err := parseCredentials(cfg.AuthRules[i].Credentials)
		if err != nil {
			return nil, fmt.Errorf("config: auth_rules[%d]: %w", i, err)
		}
		cfg.AuthRules[i].Users = users
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.FileRoot == "" {
		return fmt.Errorf("config: file_root is required")
	}
	if fi, err := os.Stat(cfg.FileRoot); err != nil || !fi.IsDir() {
		return fmt.Errorf("config: file_root %q is not a directory", cfg.FileRoot)
	}
	if cfg.TemplateRoot != "" {
		if fi, err := os.Stat(cfg.TemplateRoot); err != nil || !fi.IsDir() {
			return fmt.Errorf("config: template_root %q is not a directory", cfg.TemplateRoot)
		}
	}
	if cfg.Address == "" {
		return fmt.Errorf("config: address is required")
	}
	if cfg.TLS != nil {
		if cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "" {
			return fmt.Errorf("config: tls requires both cert_path and key_path")
		}
		if _, err := os.Stat(cfg.TLS.CertPath); err != nil {
			return fmt.Errorf("config: tls cert_path %q not found", cfg.TLS.CertPath)
		}
		if _, err := os.Stat(cfg.TLS.KeyPath); err != nil {
			return fmt.Errorf("config: tls key_path %q not found", cfg.TLS.KeyPath)
		}
	}
	for _, rp := range cfg.RoutingTable {
		if _, err := regexp.Compile(rp.Pattern); err != nil {
			return fmt.Errorf("config: routing_table pattern %q: %w", rp.Pattern, err)
		}
	}
	return nil
}

// parseCredentials parses the "user:hash;user:hash" credential string.
// A malformed entry rejects the whole config.
func parseCredentials(raw string) (map[string]string, error) {
	users := make(map[string]string)
	if raw == "" {
		return users, nil
	}
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		i := strings.IndexByte(item, ':')
		if i <= 0 || i == len(item)-1 {
			return nil, fmt.Errorf("malformed credential entry %q", item)
		}
		users[item[:i]] = item[i+1:]
	}
	return users, nil
}

// WireLimits projects the config's limit overrides onto internal/wire's
// Limits type, filling any zero fields with wire.DefaultLimits.
func (c *Config) WireLimits() wire.Limits {
	lim := wire.Limits{
		MaxURILen:       int(c.Limits.MaxURILen),
		MaxHeadersBytes: int(c.Limits.MaxHeadersBytes),
		MaxHeadersCount: int(c.Limits.MaxHeadersCount),
		MaxBodyLen:      c.Limits.MaxBodyLen,
	}
	return lim.WithDefaults()
}

// IdleTimeout returns the configured per-connection idle timeout,
// defaulting to 5s.
func (c *Config) IdleTimeout() time.Duration {
	if c.Limits.IdleTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Limits.IdleTimeoutSec) * time.Second
}

// ShutdownGrace returns the configured graceful-shutdown grace period,
// defaulting to 5s.
func (c *Config) ShutdownGrace() time.Duration {
	if c.Limits.ShutdownGraceSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Limits.ShutdownGraceSec) * time.Second
}

// CGITimeout returns the configured CGI execution budget, defaulting to
// 30s.
func (c *Config) CGITimeout() time.Duration {
	if c.Limits.CGITimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Limits.CGITimeoutSec) * time.Second
}

// MaxRequestsPerConn returns the configured pipelining cap, defaulting to
// 100.
func (c *Config) MaxRequestsPerConn() int {
	if c.Limits.MaxRequestsPerConn <= 0 {
		return 100
	}
	return c.Limits.MaxRequestsPerConn
}

// MaxConnections returns the configured global admission cap, defaulting
// to 1024.
func (c *Config) MaxConnections() int64 {
	if c.Limits.MaxConnections <= 0 {
		return 1024
	}
	return c.Limits.MaxConnections
}

// MaxRanges returns the configured soft cap on byte-range-specs per
// request, defaulting to internal/rng.MaxRanges (16).
func (c *Config) MaxRanges() int {
	if c.Limits.MaxRanges <= 0 {
		return 16
	}
	return c.Limits.MaxRanges
}
