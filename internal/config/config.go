// Package config provides configuration for the forge server, driven
// by environment variables with an optional forge.yaml supplying
// default state policies.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"forge/internal/ops"
)

// Config holds server configuration.
type Config struct {
	// Listen is the address the HTTP server listens on (e.g., ":8420").
	Listen string
	// DataDir is the root directory for on-disk persistence.
	DataDir string
	// Store selects the persistence backend: "file" or "sqlite".
	Store string
	// ParserBin is the external Python top-level parser binary.
	ParserBin string
	// ParserMode is one of "auto", "ast", "libcst".
	ParserMode string
	// ParserStrict disables the regex fallback when the external parser
	// is unavailable.
	ParserStrict bool
	// LogLevel is one of "debug", "info", "warn", "error", "silent".
	LogLevel string
	// LogStateUpdates toggles a log line per accepted state_update event.
	LogStateUpdates bool
	// DefaultPolicy seeds newly created states that don't specify their
	// own policy, loaded from forge.yaml when present.
	DefaultPolicy ops.Policy
}

// FromEnv builds a Config from FORGE_* environment variables.
func FromEnv() *Config {
	return &Config{
		Listen:          getEnv("FORGE_LISTEN", ":8420"),
		DataDir:         getEnv("FORGE_DATA", "./data"),
		Store:           getEnv("FORGE_STORE", "file"),
		ParserBin:       getEnv("FORGE_PARSER_BIN", ""),
		ParserMode:      getEnv("FORGE_PARSER_MODE", "auto"),
		ParserStrict:    getEnvBool("FORGE_PARSER_STRICT", false),
		LogLevel:        getEnv("FORGE_LOG_LEVEL", "info"),
		LogStateUpdates: getEnvBool("FORGE_LOG_STATE_UPDATES", false),
		DefaultPolicy:   ops.PermissivePolicy(),
	}
}

// yamlPolicy mirrors ops.Policy's shape for forge.yaml.
type yamlPolicy struct {
	AllowOpenConflicts     bool     `yaml:"allow_open_conflicts"`
	RequiredChecks         []string `yaml:"required_checks"`
	RequiredHumanApprovals int      `yaml:"required_human_approvals"`
}

type yamlFile struct {
	DefaultPolicy *yamlPolicy `yaml:"default_policy"`
}

// LoadYAML overlays cfg.DefaultPolicy with the default_policy section
// of a forge.yaml file at path, if present. A missing file is not an
// error; a malformed one is.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.DefaultPolicy != nil {
		cfg.DefaultPolicy = ops.Policy{
			AllowOpenConflicts:     doc.DefaultPolicy.AllowOpenConflicts,
			RequiredChecks:         doc.DefaultPolicy.RequiredChecks,
			RequiredHumanApprovals: doc.DefaultPolicy.RequiredHumanApprovals,
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
