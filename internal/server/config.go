package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	ListenAddr string              `json:"listen_addr" yaml:"listen_addr"`
	Database   DatabaseConfig      `json:"database" yaml:"database"`
	Auth       AuthConfig          `json:"auth" yaml:"auth"`
	Security   SecurityConfig      `json:"security" yaml:"security"`
	Upstream   UpstreamConfig      `json:"upstream" yaml:"upstream"`
	Thresholds map[string]float64  `json:"thresholds" yaml:"thresholds"`
	Retention  RetentionConfig     `json:"retention" yaml:"retention"`
	Observer   ObservabilityConfig `json:"observability" yaml:"observability"`
}

type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxConns       int32  `json:"max_conns" yaml:"max_conns"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
	SnapshotPath   string `json:"snapshot_path" yaml:"snapshot_path"`
}

type AuthConfig struct {
	SessionTTL string `json:"session_ttl" yaml:"session_ttl"`
	CookieName string `json:"cookie_name" yaml:"cookie_name"`
}

type SecurityConfig struct {
	AdminToken string `json:"admin_token" yaml:"admin_token"`
}

// UpstreamConfig describes the comment analyzer endpoint. Models lists the
// wire names requested when a check does not name its own.
type UpstreamConfig struct {
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	APIKey     string   `json:"api_key" yaml:"api_key"`
	Languages  []string `json:"languages" yaml:"languages"`
	TimeoutSec int      `json:"timeout_sec" yaml:"timeout_sec"`
	Models     []string `json:"models" yaml:"models"`
}

// RetentionConfig controls what the store keeps of submitted text. With
// StoreBodies false only the redacted placeholder is persisted.
type RetentionConfig struct {
	StoreBodies bool `json:"store_bodies" yaml:"store_bodies"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			MaxConns:       10,
			MigrationsPath: "./migrations",
		},
		Auth: AuthConfig{
			SessionTTL: "8h",
			CookieName: "guard_session",
		},
		Upstream: UpstreamConfig{
			Languages:  []string{"en"},
			TimeoutSec: 30,
			Models:     []string{"TOXICITY", "SEVERE_TOXICITY", "SPAM"},
		},
		Observer: ObservabilityConfig{
			ServiceName: "commentguard-api",
			SampleRatio: 1,
		},
	}
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

func normalizeConfig(cfg *ServerConfig) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if strings.TrimSpace(cfg.Database.MigrationsPath) == "" {
		cfg.Database.MigrationsPath = "./migrations"
	}
	if strings.TrimSpace(cfg.Auth.CookieName) == "" {
		cfg.Auth.CookieName = "guard_session"
	}
	if strings.TrimSpace(cfg.Auth.SessionTTL) == "" {
		cfg.Auth.SessionTTL = "8h"
	}
	if len(cfg.Upstream.Languages) == 0 {
		cfg.Upstream.Languages = []string{"en"}
	}
	if cfg.Upstream.TimeoutSec <= 0 {
		cfg.Upstream.TimeoutSec = 30
	}
	if len(cfg.Upstream.Models) == 0 {
		cfg.Upstream.Models = []string{"TOXICITY", "SEVERE_TOXICITY", "SPAM"}
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "commentguard-api"
	}
}
