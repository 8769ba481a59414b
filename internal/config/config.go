// Package config loads sheetrelay's application configuration.
//
// Values are layered lowest to highest: built-in defaults, the config file
// (sheetrelay.yaml), SHEETRELAY_* environment variables, then explicitly
// set command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: SHEETRELAY_GATEWAY__ADDR sets gateway.addr.
const EnvPrefix = "SHEETRELAY_"

// FileNames are the config file names searched in the working directory.
var FileNames = []string{"sheetrelay.yaml", "sheetrelay.yml"}

// Config is the application configuration.
type Config struct {
	// Definitions is the module/route definition file or directory.
	Definitions string `koanf:"definitions"`

	// Store is the SQLite log path. Empty keeps state in memory only.
	Store string `koanf:"store"`

	LogFormat string `koanf:"log_format"`
	Verbose   bool   `koanf:"verbose"`

	Gateway Gateway `koanf:"gateway"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Gateway configures the HTTP ingestion surface.
type Gateway struct {
	Addr           string   `koanf:"addr"`
	Keys           []string `koanf:"keys"`
	RatePerSecond  float64  `koanf:"rate_per_second"`
	Burst          int      `koanf:"burst"`
	MaxBodyBytes   int64    `koanf:"max_body_bytes"`
	MaxRecords     int      `koanf:"max_records"`
	MaxLimiters    int      `koanf:"max_limiters"`
	StrictRequired bool     `koanf:"strict_required"`
}

// Defaults returns the built-in values.
func Defaults() map[string]any {
	return map[string]any{
		"definitions":             "definitions",
		"store":                   "",
		"log_format":              "text",
		"verbose":                 false,
		"gateway.addr":            ":8080",
		"gateway.keys":            []string{},
		"gateway.rate_per_second": 10.0,
		"gateway.burst":           20,
		"gateway.max_body_bytes":  1 << 20,
		"gateway.max_records":     1000,
		"gateway.max_limiters":    10000,
		"gateway.strict_required": false,
	}
}

// flagKeys maps command flag names onto config keys. Flags not listed are
// not configuration.
var flagKeys = map[string]string{
	"definitions": "definitions",
	"store":       "store",
	"log-format":  "log_format",
	"verbose":     "verbose",
	"addr":        "gateway.addr",
	"key":         "gateway.keys",
	"strict":      "gateway.strict_required",
}

// pathKeys are resolved against the config file's directory when they
// come from the file.
var pathKeys = []string{"definitions", "store"}

// Load builds the configuration. cfgFile may be empty, in which case the
// working directory is searched for FileNames. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := findFile(cfgFile)
	if cfgFile != "" && path == "" {
		return nil, fmt.Errorf("config file %s not found", cfgFile)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		resolvePaths(k, filepath.Dir(path))
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.Gateway.RatePerSecond <= 0 {
		errs = append(errs, errors.New("gateway.rate_per_second must be positive"))
	}
	if c.Gateway.Burst <= 0 {
		errs = append(errs, errors.New("gateway.burst must be positive"))
	}
	if c.Gateway.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("gateway.max_body_bytes must be positive"))
	}
	if c.Gateway.MaxRecords <= 0 {
		errs = append(errs, errors.New("gateway.max_records must be positive"))
	}
	if c.Gateway.MaxLimiters <= 0 {
		errs = append(errs, errors.New("gateway.max_limiters must be positive"))
	}
	return errors.Join(errs...)
}

func findFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return ""
		}
		return explicit
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// resolvePaths anchors relative file paths at dir. Later layers (env,
// flags) are taken as given, relative to the working directory.
func resolvePaths(k *koanf.Koanf, dir string) {
	for _, key := range pathKeys {
		p := k.String(key)
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		_ = k.Set(key, filepath.Join(dir, p))
	}
}

// envKey maps SHEETRELAY_GATEWAY__MAX_RECORDS to gateway.max_records.
// gateway.keys takes a comma-separated list.
func envKey(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "gateway.keys" {
		var keys []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, part)
			}
		}
		return key, keys
	}
	return key, value
}
