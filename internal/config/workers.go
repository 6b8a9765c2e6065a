package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/kensa/internal/normalize"
	"github.com/ashita-ai/kensa/internal/worker"
)

// WorkersFile models the worker registry YAML.
//
//	workers:
//	  - key: technical
//	    base_url: https://crawler.internal
//	    timeout: 20s
//	  - key: backlinks
//	    kind: generic
//	    agent: search
//	    base_url: https://backlinks.internal
//	    requires_key: true
type WorkersFile struct {
	Workers []WorkerEntry `yaml:"workers"`
}

// WorkerEntry is one worker in the registry file. Zero fields keep the
// built-in default for that key.
type WorkerEntry struct {
	Key         string `yaml:"key"`
	Kind        string `yaml:"kind"`
	Agent       string `yaml:"agent"`
	BaseURL     string `yaml:"base_url"`
	RunEndpoint string `yaml:"run_endpoint"`
	APIKey      string `yaml:"api_key"`
	RequiresKey *bool  `yaml:"requires_key"`
	Timeout     string `yaml:"timeout"`
	Disabled    bool   `yaml:"disabled"`
}

// DefaultWorkers is the built-in registry: one worker per known kind, none
// of them resolvable until a base URL is configured. The ranking and
// competitive workers front paid APIs and need a key.
func DefaultWorkers() []worker.Config {
	return []worker.Config{
		{Key: "technical", Kind: normalize.KindTechnical},
		{Key: "performance", Kind: normalize.KindPerformance},
		{Key: "serp", Kind: normalize.KindSERP, RequiresKey: true},
		{Key: "competitive", Kind: normalize.KindCompetitive, RequiresKey: true},
		{Key: "ai_readiness", Kind: normalize.KindAIReadiness},
	}
}

// LoadWorkers builds the worker registry: built-in defaults, then the YAML
// file at path when non-empty, then KENSA_WORKER_<KEY>_* environment
// overrides.
func LoadWorkers(path string) ([]worker.Config, error) {
	workers := DefaultWorkers()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read workers file: %w", err)
		}
		if workers, err = MergeWorkersYAML(workers, data); err != nil {
			return nil, fmt.Errorf("workers file %s: %w", path, err)
		}
	}
	return applyWorkerEnv(workers)
}

// MergeWorkersYAML applies registry file entries on top of base. Entries for
// unknown keys add workers; disabled entries remove them.
func MergeWorkersYAML(base []worker.Config, data []byte) ([]worker.Config, error) {
	var f WorkersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid workers yaml: %w", err)
	}

	out := make([]worker.Config, len(base))
	copy(out, base)
	index := func(key string) int {
		for i, w := range out {
			if w.Key == key {
				return i
			}
		}
		return -1
	}

	for _, e := range f.Workers {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			return nil, fmt.Errorf("worker entry without key")
		}
		i := index(key)
		if e.Disabled {
			if i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
			continue
		}
		if i < 0 {
			out = append(out, worker.Config{Key: key})
			i = len(out) - 1
		}
		w := &out[i]
		if e.Kind != "" {
			kind, ok := normalize.ParseKind(e.Kind)
			if !ok {
				return nil, fmt.Errorf("worker %s: unknown kind %q", key, e.Kind)
			}
			w.Kind = kind
		}
		if e.Agent != "" {
			w.Agent = e.Agent
		}
		if e.BaseURL != "" {
			w.BaseURL = e.BaseURL
		}
		if e.RunEndpoint != "" {
			w.RunEndpoint = e.RunEndpoint
		}
		if e.APIKey != "" {
			w.APIKey = os.ExpandEnv(e.APIKey)
		}
		if e.RequiresKey != nil {
			w.RequiresKey = *e.RequiresKey
		}
		if e.Timeout != "" {
			d, err := time.ParseDuration(e.Timeout)
			if err != nil {
				return nil, fmt.Errorf("worker %s: timeout %q is not a valid duration", key, e.Timeout)
			}
			w.Timeout = d
		}
	}
	return out, nil
}

// WorkerEnvPrefix returns the environment prefix for a worker key, e.g.
// "ai_readiness" -> "KENSA_WORKER_AI_READINESS_".
func WorkerEnvPrefix(key string) string {
	var b strings.Builder
	b.WriteString("KENSA_WORKER_")
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	return b.String()
}

func applyWorkerEnv(workers []worker.Config) ([]worker.Config, error) {
	var errs []error
	for i := range workers {
		prefix := WorkerEnvPrefix(workers[i].Key)
		workers[i].BaseURL = envStr(prefix+"URL", workers[i].BaseURL)
		workers[i].APIKey = envStr(prefix+"API_KEY", workers[i].APIKey)
		timeout, err := envDuration(prefix+"TIMEOUT", workers[i].Timeout)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		workers[i].Timeout = timeout
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return workers, nil
}

func validateWorkers(workers []worker.Config, budget time.Duration) error {
	seen := make(map[string]bool, len(workers))
	for _, w := range workers {
		if seen[w.Key] {
			return fmt.Errorf("config: duplicate worker key %q", w.Key)
		}
		seen[w.Key] = true
		if w.Timeout < 0 {
			return fmt.Errorf("config: worker %s timeout must not be negative", w.Key)
		}
		if w.Timeout > budget {
			return fmt.Errorf("config: worker %s timeout (%s) exceeds KENSA_RUN_BUDGET (%s)", w.Key, w.Timeout, budget)
		}
	}
	return nil
}
