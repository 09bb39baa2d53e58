// Package config loads the settings shared by the mini-jsonrpc server and client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
)

// EnvConfigFile names the config file when Load is given no path.
const EnvConfigFile = "MINI_JSONRPC_CONFIG"

// configFormat represents supported configuration file formats.
type configFormat int

const (
	configFormatJSON configFormat = iota
	configFormatYAML
)

// Config is the complete configuration. Durations are whole seconds.
type Config struct {
	Server struct {
		// Listen: address the server accepts connections on
		Listen string `json:"listen" yaml:"listen"`
		// Advertise: address published to the registry (defaults to Listen)
		Advertise string `json:"advertise,omitempty" yaml:"advertise,omitempty"`
		// Service: name the server registers under
		Service          string `json:"service" yaml:"service"`
		HeartbeatSeconds int    `json:"heartbeatSeconds" yaml:"heartbeatSeconds"`
		ShutdownSeconds  int    `json:"shutdownSeconds" yaml:"shutdownSeconds"`
		// RateLimit: requests per second across all connections, 0 disables
		RateLimit float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
		RateBurst int     `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
		// TimeoutSeconds bounds each method invocation, 0 disables
		TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	} `json:"server" yaml:"server"`

	Client struct {
		PoolSize       int    `json:"poolSize" yaml:"poolSize"`
		Balancer       string `json:"balancer" yaml:"balancer"`
		TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	} `json:"client" yaml:"client"`

	// Codec: "json" or "binary"
	Codec string `json:"codec" yaml:"codec"`

	Registry struct {
		// Endpoints: etcd endpoints, empty disables discovery
		Endpoints          []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
		TTLSeconds         int      `json:"ttlSeconds" yaml:"ttlSeconds"`
		DialTimeoutSeconds int      `json:"dialTimeoutSeconds" yaml:"dialTimeoutSeconds"`
	} `json:"registry" yaml:"registry"`

	Log struct {
		Level       string `json:"level" yaml:"level"`
		Development bool   `json:"development,omitempty" yaml:"development,omitempty"`
	} `json:"log" yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.Server.Listen = ":9000"
	c.Server.Service = "mini-jsonrpc"
	c.Server.HeartbeatSeconds = 30
	c.Server.ShutdownSeconds = 5
	c.Client.PoolSize = 4
	c.Client.Balancer = "round_robin"
	c.Client.TimeoutSeconds = 5
	c.Codec = "json"
	c.Registry.TTLSeconds = 10
	c.Registry.DialTimeoutSeconds = 5
	c.Log.Level = "info"
	return c
}

// detectConfigFormat picks the parser by file extension; anything that is
// not .yaml or .yml is read as JSON.
func detectConfigFormat(configPath string) configFormat {
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return configFormatYAML
	default:
		return configFormatJSON
	}
}

func unmarshalConfig(data []byte, config *Config, format configFormat) error {
	switch format {
	case configFormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", err)
		}
	}
	return nil
}

// Load reads configPath, or the file named by MINI_JSONRPC_CONFIG when
// configPath is empty, over the defaults. With neither, the defaults are
// returned. The result is validated.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath == "" {
		configPath = os.Getenv(EnvConfigFile)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := unmarshalConfig(data, config, detectConfigFormat(configPath)); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.HeartbeatSeconds < 0 {
		errs = append(errs, errors.New("server.heartbeatSeconds must not be negative"))
	}
	if c.Server.ShutdownSeconds <= 0 {
		errs = append(errs, errors.New("server.shutdownSeconds must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rateLimit must not be negative"))
	}
	if c.Client.PoolSize <= 0 {
		errs = append(errs, errors.New("client.poolSize must be positive"))
	}
	if _, err := loadbalance.New(c.Client.Balancer); err != nil {
		errs = append(errs, fmt.Errorf("client.balancer: %w", err))
	}
	if _, ok := codec.ParseCodecType(c.Codec); !ok {
		errs = append(errs, fmt.Errorf("codec: unknown codec %q", c.Codec))
	}
	if len(c.Registry.Endpoints) > 0 && c.Registry.TTLSeconds <= 0 {
		errs = append(errs, errors.New("registry.ttlSeconds must be positive"))
	}
	return errors.Join(errs...)
}

// CodecType returns the parsed codec; Validate guarantees it is known.
func (c *Config) CodecType() codec.CodecType {
	ct, _ := codec.ParseCodecType(c.Codec)
	return ct
}

// AdvertiseAddr is the address published to the registry.
func (c *Config) AdvertiseAddr() string {
	if c.Server.Advertise != "" {
		return c.Server.Advertise
	}
	return c.Server.Listen
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) Heartbeat() time.Duration       { return seconds(c.Server.HeartbeatSeconds) }
func (c *Config) ShutdownTimeout() time.Duration { return seconds(c.Server.ShutdownSeconds) }
func (c *Config) InvokeTimeout() time.Duration   { return seconds(c.Server.TimeoutSeconds) }
func (c *Config) CallTimeout() time.Duration     { return seconds(c.Client.TimeoutSeconds) }
func (c *Config) RegistryTTL() time.Duration     { return seconds(c.Registry.TTLSeconds) }
func (c *Config) DialTimeout() time.Duration     { return seconds(c.Registry.DialTimeoutSeconds) }
