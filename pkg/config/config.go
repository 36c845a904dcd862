// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads spendlens settings from defaults, a YAML file, an
// optional profile overlay, SPENDLENS_* environment variables and --set
// command-line overrides, in that order of precedence.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/spendlens/pkg/errors"
)

// EnvPrefix prefixes environment overrides: SPENDLENS_LLM_BASE_URL sets
// llm.base_url.
const EnvPrefix = "SPENDLENS_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Sandbox    SandboxConfig    `koanf:"sandbox"`
	Executor   ExecutorConfig   `koanf:"executor"`
	Storage    StorageConfig    `koanf:"storage"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider      string        `koanf:"provider"` // ollama, mock
	Model         string        `koanf:"model"`
	BaseURL       string        `koanf:"base_url"`
	Temperature   float64       `koanf:"temperature"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxRetries    int           `koanf:"max_retries"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
}

type SandboxConfig struct {
	// OutputDir is the chart directory inside the artifact store.
	OutputDir string        `koanf:"output_dir"`
	MaxSteps  uint64        `koanf:"max_steps"`
	Timeout   time.Duration `koanf:"timeout"`
	MaxRows   int           `koanf:"max_rows"`
	MaxPoints int           `koanf:"max_points"`
	// MaxMemoryMB is the memory quota of an isolated script.
	MaxMemoryMB int `koanf:"max_memory_mb"`
	// Isolate runs model chart code in a child process.
	Isolate bool `koanf:"isolate"`
}

type ExecutorConfig struct {
	TaskTimeout time.Duration `koanf:"task_timeout"`
	Audit       string        `koanf:"audit"` // memory, sqlite, none
	// AllowedTools, when set, is the only tools plans may call. Entries are
	// names or path.Match patterns.
	AllowedTools []string `koanf:"allowed_tools"`
	DeniedTools  []string `koanf:"denied_tools"`
}

type StorageConfig struct {
	// SQLitePath holds transactions and the task audit trail.
	SQLitePath  string `koanf:"sqlite_path"`
	ArtifactDir string `koanf:"artifact_dir"`
	ReportDir   string `koanf:"report_dir"`
	// MemoryLogPath mirrors the action log as JSON lines when set.
	MemoryLogPath string `koanf:"memory_log_path"`
}

type TelemetryConfig struct {
	ServiceName    string        `koanf:"service_name"`
	Exporter       string        `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint   string        `koanf:"otlp_endpoint"`
	OTLPInsecure   bool          `koanf:"otlp_insecure"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// GuardrailsConfig screens goals before planning and model narratives before
// they reach reports.
type GuardrailsConfig struct {
	Enabled bool   `koanf:"enabled"`
	PII     string `koanf:"pii"` // mask, redact, off
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":        "ollama",
	"llm.model":           "qwen2.5-coder:7b-instruct-q5_K_M",
	"llm.base_url":        "http://localhost:11434",
	"llm.temperature":     0.2,
	"llm.timeout":         120 * time.Second,
	"llm.max_retries":     3,
	"llm.rate_per_second": 2.0,
	"llm.burst":           2,

	"sandbox.output_dir":    "charts",
	"sandbox.max_steps":     uint64(2_000_000),
	"sandbox.timeout":       5 * time.Second,
	"sandbox.max_rows":      100_000,
	"sandbox.max_points":    5_000,
	"sandbox.max_memory_mb": 512,
	"sandbox.isolate":       true,

	"executor.task_timeout": 60 * time.Second,
	"executor.audit":        "sqlite",

	"storage.sqlite_path":     "spendlens.db",
	"storage.artifact_dir":    "output",
	"storage.report_dir":      "reports",
	"storage.memory_log_path": "",

	"telemetry.service_name":    "spendlens",
	"telemetry.exporter":        "none",
	"telemetry.otlp_insecure":   true,
	"telemetry.metric_interval": time.Minute,

	"guardrails.enabled": true,
	"guardrails.pii":     "mask",
}

// Load reads defaults, the file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile is Load with the config.<profile>.yaml overlay next to path
// applied on top of the base file. A missing overlay is ignored.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads using --config, --profile (alias --env) and repeated
// --set key=value arguments. Other arguments are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

type override struct {
	key   string
	value any
}

type cliOptions struct {
	path    string
	profile string
}

func load(path, profile string, overrides []override) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load config file", err).
				WithContext("path", path)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "load profile config", err).
					WithContext("path", overlay)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SPENDLENS_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(lower, "_", ".", 1)
}

// profileConfigPath returns the overlay for profile next to base, or "" when
// there is none.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func parseCLIOverrides(args []string) (cliOptions, []override, error) {
	var opts cliOptions
	var overrides []override

	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, errors.Newf(errors.CodeInvalidInput, "%s requires a value", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			o, err := parseOverride(value)
			if err != nil {
				return opts, nil, err
			}
			overrides = append(overrides, o)
		}
	}
	return opts, overrides, nil
}

// parseOverride splits key=value. JSON values (numbers, booleans, objects,
// lists) are decoded; anything else is kept as a string.
func parseOverride(s string) (override, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, errors.Newf(errors.CodeInvalidInput, "invalid --set %q, want key=value", s)
	}
	var value any = raw
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		if _, isString := decoded.(string); !isString {
			value = decoded
		}
	}
	return override{key: key, value: value}, nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "mock":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown llm.provider %q", c.LLM.Provider)
	}
	switch c.Telemetry.Exporter {
	case "none", "stdout", "otlp":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown telemetry.exporter %q", c.Telemetry.Exporter)
	}
	switch c.Executor.Audit {
	case "memory", "sqlite", "none":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown executor.audit %q", c.Executor.Audit)
	}
	switch c.Guardrails.PII {
	case "mask", "redact", "off":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown guardrails.pii %q", c.Guardrails.PII)
	}
	for name, d := range map[string]time.Duration{
		"llm.timeout":           c.LLM.Timeout,
		"sandbox.timeout":       c.Sandbox.Timeout,
		"executor.task_timeout": c.Executor.TaskTimeout,
	} {
		if d < 0 {
			return errors.Newf(errors.CodeInvalidInput, "%s must not be negative", name)
		}
	}
	if c.Sandbox.MaxMemoryMB < 0 {
		return errors.New(errors.CodeInvalidInput, "sandbox.max_memory_mb must not be negative", nil)
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New(errors.CodeInvalidInput, "llm.max_retries must not be negative", nil)
	}
	return nil
}
