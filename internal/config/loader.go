package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Default returns a Config with every default applied, for callers that
// have no config file to read (e.g. a missing --config path).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with the defaults spelled out in
// the component design (poll/debounce/decay/confidence bands, etc).
func applyDefaults(cfg *Config) {
	if len(cfg.Registry.Dirs) == 0 {
		cfg.Registry.Dirs = []string{filepath.Join(KernelPath(), "skills")}
	}
	if cfg.Registry.PollInterval == 0 {
		cfg.Registry.PollInterval = Duration(2_000_000_000) // 2s
	}
	if cfg.Registry.DebounceWindow == 0 {
		cfg.Registry.DebounceWindow = Duration(200_000_000) // 200ms
	}

	if cfg.Index.Dir == "" {
		cfg.Index.Dir = filepath.Join(KernelPath(), "index")
	}
	if cfg.Index.Alpha == 0 {
		cfg.Index.Alpha = 0.6
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 10
	}

	if cfg.Feedback.Path == "" {
		cfg.Feedback.Path = filepath.Join(KernelPath(), "feedback.json")
	}
	if cfg.Feedback.DecayRate == 0 {
		cfg.Feedback.DecayRate = 0.99
	}
	if cfg.Feedback.Floor == 0 {
		cfg.Feedback.Floor = 0.01
	}

	if cfg.Sniffer.ScratchpadPath == "" {
		cfg.Sniffer.ScratchpadPath = filepath.Join(KernelPath(), "SCRATCHPAD.md")
	}
	if cfg.Sniffer.PreviewCount == 0 {
		cfg.Sniffer.PreviewCount = 3
	}
	if cfg.Sniffer.Budget == 0 {
		cfg.Sniffer.Budget = Duration(10_000_000) // 10ms
	}

	if cfg.Router.CacheSize == 0 {
		cfg.Router.CacheSize = 256
	}
	if cfg.Router.ConfidenceDispatch == 0 {
		cfg.Router.ConfidenceDispatch = 0.8
	}
	if cfg.Router.ConfidenceCaution == 0 {
		cfg.Router.ConfidenceCaution = 0.5
	}

	if cfg.Agent.StepBudget == 0 {
		cfg.Agent.StepBudget = 5
	}
	if cfg.Agent.StepTimeout == 0 {
		cfg.Agent.StepTimeout = Duration(30_000_000_000) // 30s
	}

	if cfg.Isolator.DefaultTimeout == 0 {
		cfg.Isolator.DefaultTimeout = Duration(30_000_000_000) // 30s
	}
	if v := os.Getenv("SUBPROCESS_TIMEOUT_SECONDS"); v != "" {
		if secs := parseSeconds(v); secs > 0 {
			cfg.Isolator.DefaultTimeout = Duration(secs * 1_000_000_000)
		}
	}
	if cfg.Isolator.MaxTimeout == 0 {
		cfg.Isolator.MaxTimeout = Duration(300_000_000_000) // 300s
	}
	if cfg.Isolator.KillGrace == 0 {
		cfg.Isolator.KillGrace = Duration(5_000_000_000) // 5s
	}

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18420
	}

	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		if dims := parseSeconds(v); dims > 0 && cfg.Embedding.Dims == 0 {
			cfg.Embedding.Dims = int(dims)
		}
	}
}

func parseSeconds(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
