package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PoolConfig is the serialized form of a credential pool.
// JSON files may nest it under a "credential_pool" key.
type PoolConfig struct {
	Credentials []Credential `json:"credentials" yaml:"credentials"`
}

// LoadFromFile loads a pool from a JSON or YAML file, chosen by extension.
func LoadFromFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadFromYAML(data)
	default:
		return LoadFromJSON(data)
	}
}

// LoadFromJSON loads a pool from JSON data.
// Accepts either a full config with a "credential_pool" key or just the pool config.
func LoadFromJSON(data []byte) (*Pool, error) {
	var full struct {
		CredentialPool *PoolConfig `json:"credential_pool"`
	}
	if err := json.Unmarshal(data, &full); err == nil && full.CredentialPool != nil {
		return poolFromConfig(full.CredentialPool)
	}

	var cfg PoolConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	return poolFromConfig(&cfg)
}

// LoadFromYAML loads a pool from YAML data.
func LoadFromYAML(data []byte) (*Pool, error) {
	var cfg PoolConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	return poolFromConfig(&cfg)
}

// ParseKeyList parses a comma-separated key list as supplied through the
// environment. An entry of the form "text=KEY" declares a preferred category;
// anything before "=" that is not a known category is treated as part of the key.
func ParseKeyList(s string) []Credential {
	var creds []Credential
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cred := Credential{Key: raw}
		if prefix, key, ok := strings.Cut(raw, "="); ok {
			if cat := ParseCategory(strings.TrimSpace(prefix)); cat != "" {
				cred = Credential{Key: strings.TrimSpace(key), Prefer: cat}
			}
		}
		creds = append(creds, cred)
	}
	return creds
}

// poolFromConfig validates preferences and builds a Pool.
func poolFromConfig(cfg *PoolConfig) (*Pool, error) {
	for i, c := range cfg.Credentials {
		if c.Prefer != "" && !c.Prefer.IsValid() {
			return nil, fmt.Errorf("credential %d: unknown preferred category %q", i, c.Prefer)
		}
	}
	return NewPool(cfg.Credentials), nil
}

// ToConfig converts a Pool to a PoolConfig for serialization.
func (p *Pool) ToConfig() *PoolConfig {
	return &PoolConfig{Credentials: p.Credentials()}
}
