// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the keymaster configuration from a YAML file,
// KEYMASTER_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-keymaster/pkg/logging"
	"github.com/jeremyhahn/go-keymaster/pkg/ratelimit"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/azurekv"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/vault"
)

// EnvPrefix prefixes every environment override, e.g. KEYMASTER_STORAGE_BACKEND.
const EnvPrefix = "KEYMASTER"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete keymaster configuration.
type Config struct {
	Logging   logging.Config   `yaml:"logging" mapstructure:"logging"`
	Storage   StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Keystore  KeystoreConfig   `yaml:"keystore" mapstructure:"keystore"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	TLS       TLSConfig        `yaml:"tls" mapstructure:"tls"`
	Auth      AuthConfig       `yaml:"auth" mapstructure:"auth"`
	RateLimit ratelimit.Config `yaml:"ratelimit" mapstructure:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Audit     AuditConfig      `yaml:"audit" mapstructure:"audit"`
}

// StorageConfig selects where encrypted records live.
type StorageConfig struct {
	// Backend is one of memory, file, sqlite, vault, azurekv.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the directory (file) or database file (sqlite).
	Path string `yaml:"path" mapstructure:"path"`

	Vault   vault.Config   `yaml:"vault" mapstructure:"vault"`
	AzureKV azurekv.Config `yaml:"azurekv" mapstructure:"azurekv"`
}

// KeystoreConfig sets the KDF used for newly written records. Records are
// always read with the parameters stored in them.
type KeystoreConfig struct {
	// KDF is scrypt, pbkdf2 or argon2id.
	KDF string `yaml:"kdf" mapstructure:"kdf"`

	ScryptLogN uint8 `yaml:"scrypt_log_n" mapstructure:"scrypt_log_n"`
	ScryptR    int   `yaml:"scrypt_r" mapstructure:"scrypt_r"`
	ScryptP    int   `yaml:"scrypt_p" mapstructure:"scrypt_p"`

	PBKDF2Iterations int    `yaml:"pbkdf2_iterations" mapstructure:"pbkdf2_iterations"`
	PBKDF2PRF        string `yaml:"pbkdf2_prf" mapstructure:"pbkdf2_prf"`

	Argon2Time    uint32 `yaml:"argon2_time" mapstructure:"argon2_time"`
	Argon2Memory  uint32 `yaml:"argon2_memory" mapstructure:"argon2_memory"`
	Argon2Threads uint8  `yaml:"argon2_threads" mapstructure:"argon2_threads"`

	// Random is the entropy source mode: auto or software.
	Random string `yaml:"random" mapstructure:"random"`
}

// ServerConfig controls the REST listener.
type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`

	// HTTP3 adds a QUIC listener on the same address. Requires TLS.
	HTTP3 bool `yaml:"http3" mapstructure:"http3"`

	// Socket, when set, also serves the API on a Unix domain socket for
	// local clients. SocketMode is its permission bits.
	Socket     string `yaml:"socket" mapstructure:"socket"`
	SocketMode uint32 `yaml:"socket_mode" mapstructure:"socket_mode"`

	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// AuditConfig controls audit event recording.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Capacity bounds the in-memory event buffer.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`

	// Log also writes every event to the process logger.
	Log bool `yaml:"log" mapstructure:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: logging.Config{Level: "info", Format: "text"},
		Storage: StorageConfig{Backend: "file", Path: "./keystore"},
		Keystore: KeystoreConfig{
			KDF:              "scrypt",
			ScryptLogN:       13,
			ScryptR:          8,
			ScryptP:          1,
			PBKDF2Iterations: 262144,
			PBKDF2PRF:        "hmac-sha256",
			Argon2Time:       3,
			Argon2Memory:     64 * 1024,
			Argon2Threads:    4,
			Random:           "auto",
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			SocketMode:      0o660,
		},
		Auth:      AuthConfig{Methods: []string{"none"}},
		RateLimit: ratelimit.Config{Enabled: false, RequestsPerMinute: 600},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		Audit:     AuditConfig{Enabled: true, Capacity: 10000, Log: true},
	}
}

// NewViper returns a viper instance preloaded with the defaults and wired
// for KEYMASTER_* environment overrides. Nested keys map to underscores:
// storage.vault.address is KEYMASTER_STORAGE_VAULT_ADDRESS.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, "", Default())
	// omitempty fields are absent from the marshalled defaults.
	for _, key := range []string{"tenant_id", "client_id", "client_secret", "name_prefix"} {
		v.SetDefault("storage.azurekv."+key, "")
	}
	v.SetDefault("storage.azurekv.timeout", time.Duration(0))
	return v
}

// Load reads path (when non-empty) into v and decodes the merged result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load with a fresh viper instance.
func LoadFile(path string) (*Config, error) {
	return Load(NewViper(), path)
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if _, err := c.Keystore.KDFParams(); err != nil {
		return err
	}
	if _, err := c.Keystore.randomMode(); err != nil {
		return err
	}
	if c.Server.HTTP3 && !c.TLS.Enabled {
		return fmt.Errorf("%w: http3 requires tls", ErrInvalidConfig)
	}
	if c.Server.Socket != "" && (c.Server.SocketMode == 0 || c.Server.SocketMode&^0o777 != 0) {
		return fmt.Errorf("%w: server socket_mode %#o", ErrInvalidConfig, c.Server.SocketMode)
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls cert_file and key_file are required", ErrInvalidConfig)
	}
	if err := c.Auth.validate(c.TLS); err != nil {
		return err
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: ratelimit requests_per_minute must be positive", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics path %q", ErrInvalidConfig, c.Metrics.Path)
	}
	return nil
}

// Redacted returns a copy with credentials blanked, suitable for printing.
func (c *Config) Redacted() *Config {
	r := *c
	if r.Storage.Vault.Token != "" {
		r.Storage.Vault.Token = redacted
	}
	if r.Storage.AzureKV.ClientSecret != "" {
		r.Storage.AzureKV.ClientSecret = redacted
	}
	r.Auth.APIKeys = make([]APIKey, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		k.Key = redacted
		r.Auth.APIKeys[i] = k
	}
	return &r
}

const redacted = "********"

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// setDefaults registers every leaf of def with v so AutomaticEnv can find
// the key.
func setDefaults(v *viper.Viper, prefix string, def *Config) {
	var tree map[string]any
	raw, err := yaml.Marshal(def)
	if err == nil {
		err = yaml.Unmarshal(raw, &tree)
	}
	if err != nil {
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	walk(v, prefix, tree)
}

func walk(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			walk(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}
