package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/okanda/warden/internal/controller"
	"github.com/okanda/warden/internal/identity"
	"github.com/okanda/warden/internal/logger"
	"github.com/okanda/warden/internal/workspace"
)

// Config is the top-level TOML structure for the warden daemon.
type Config struct {
	Root             string          `toml:"root" mapstructure:"root"`
	CurrentWorkspace string          `toml:"current_workspace" mapstructure:"current_workspace"`
	Command          []string        `toml:"command" mapstructure:"command"`
	Env              []string        `toml:"env" mapstructure:"env"`
	SearchPaths      []string        `toml:"search_paths" mapstructure:"search_paths"`
	AutoStart        bool            `toml:"auto_start" mapstructure:"auto_start"`
	Signature        SignatureConfig `toml:"signature" mapstructure:"signature"`
	Service          ServiceConfig   `toml:"service" mapstructure:"service"`
	Server           ServerConfig    `toml:"server" mapstructure:"server"`
	History          HistoryConfig   `toml:"history" mapstructure:"history"`
	Metrics          MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Log              logger.Config   `toml:"log" mapstructure:"log"`
}

// SignatureConfig overrides the built-in service identity signature.
type SignatureConfig struct {
	BinaryName    string   `toml:"binary_name" mapstructure:"binary_name"`
	Interpreters  []string `toml:"interpreters" mapstructure:"interpreters"`
	CmdlineTokens []string `toml:"cmdline_tokens" mapstructure:"cmdline_tokens"`
}

// ServiceConfig describes the supervised service's own HTTP surface.
type ServiceConfig struct {
	Port         int    `toml:"port" mapstructure:"port"`
	ShutdownPath string `toml:"shutdown_path" mapstructure:"shutdown_path"`
	HealthPath   string `toml:"health_path" mapstructure:"health_path"`
}

// ServerConfig configures warden's own HTTP API.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// HistoryConfig selects the lifecycle history sink by DSN. Empty
// disables recording.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
	// Listen optionally serves /metrics on its own address in addition
	// to the API router's endpoint.
	Listen string `toml:"listen" mapstructure:"listen"`
}

// DefaultListen is where the warden API serves when unset.
const DefaultListen = "127.0.0.1:8611"

// Load reads a TOML config file and applies defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	if err := c.applyDefaults(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns a Config with no file backing it, defaults applied.
func Default() (Config, error) {
	var c Config
	if err := c.applyDefaults(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() error {
	if c.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.Root = filepath.Join(home, ".warden")
	}
	if c.Service.Port <= 0 {
		c.Service.Port = controller.DefaultPort
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	return nil
}

// SignatureOrDefault maps the signature section onto an identity
// signature, falling back to the built-in one when the section is empty.
func (c Config) SignatureOrDefault() identity.Signature {
	if c.Signature.BinaryName == "" && len(c.Signature.CmdlineTokens) == 0 {
		return identity.DefaultSignature()
	}
	return identity.Signature{
		BinaryName:    c.Signature.BinaryName,
		Interpreters:  c.Signature.Interpreters,
		CmdlineTokens: c.Signature.CmdlineTokens,
	}
}

// ControllerOptions assembles controller options from the config.
// History sinks are wired separately by the caller.
func (c Config) ControllerOptions() controller.Options {
	return controller.Options{
		Layout:       workspace.Layout{Root: c.Root},
		Signature:    c.SignatureOrDefault(),
		Port:         c.Service.Port,
		ShutdownPath: c.Service.ShutdownPath,
		HealthPath:   c.Service.HealthPath,
		ExtraEnv:     c.Env,
		SearchPaths:  c.SearchPaths,
	}
}
