// Package config loads and validates the service configuration.
//
// Configuration is a YAML file checked against an embedded CUE schema:
// YAML supplies the values, CUE supplies the contract (required fields,
// bounds, defaults). Validation failures carry CUE's field-level detail
// instead of a generic decode error.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated service configuration.
type Config struct {
	Remote struct {
		BaseURL     string `json:"base_url"`
		Token       string `json:"token"`
		SearchLimit int    `json:"search_limit"`
	} `json:"remote"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Sandbox struct {
		TimeoutSeconds int `json:"timeout_seconds"`
		MemoryLimitMB  int `json:"memory_limit_mb"`
	} `json:"sandbox"`

	HTTP struct {
		Listen string `json:"listen"`
	} `json:"http"`
}

// Timeout returns the sandbox wall-clock limit as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}

// MemoryLimit returns the sandbox heap ceiling in bytes.
func (c Config) MemoryLimit() int64 {
	return int64(c.Sandbox.MemoryLimitMB) << 20
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML bytes against the schema and applies defaults.
func Parse(raw []byte) (Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}

	unified := schema.Unify(ctx.Encode(doc))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %s", cueDetail(err))
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %s", cueDetail(err))
	}
	return cfg, nil
}

// cueDetail flattens a CUE error list into one readable line per failure.
func cueDetail(err error) string {
	return cueerrors.Details(err, &cueerrors.Config{})
}
