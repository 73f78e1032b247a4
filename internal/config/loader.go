package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REPOINDEX_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"index.include": true,
	"index.exclude": true,
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (REPOINDEX_EMBEDDING_PROVIDER, REPOINDEX_INDEX_WORKERS, ...)
//  2. YAML file at path, or ~/.config/repoindex/config.yaml when path is empty
//  3. Default()
//
// An explicit path must exist; the default path is optional.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var content []byte
	data, err := readConfigFile(path)
	switch {
	case err == nil:
		content = data
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}
	return load(content)
}

// DefaultPath returns ~/.config/repoindex/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "repoindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "repoindex", "config.yaml")
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// load layers YAML content and the process environment over Default().
func load(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	// Absent keys keep their defaults.
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps REPOINDEX_SECTION_FIELD_NAME to section.field_name. Keys with
// only one part are top-level (REPOINDEX_DATA_DIR -> data_dir).
func envKey(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if lower == "data_dir" {
		return lower, value
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	section, field := parts[0], parts[1]

	// vectorstore.qdrant.* is the only nested section.
	if section == "vectorstore" && strings.HasPrefix(field, "qdrant_") {
		section, field = "vectorstore.qdrant", strings.TrimPrefix(field, "qdrant_")
	}

	path := section + "." + field
	if listKeys[path] {
		return path, splitList(value)
	}
	return path, value
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
