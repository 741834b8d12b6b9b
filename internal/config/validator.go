package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

var validBackends = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
}

// Validate checks the configuration for values the runtime cannot work with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if !validBackends[cfg.LLM.Backend] {
		return fmt.Errorf("unknown llm backend: %q", cfg.LLM.Backend)
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if cfg.LLM.Backend == "ollama" && cfg.LLM.Host == "" {
		return fmt.Errorf("llm host is required for the ollama backend")
	}
	if (cfg.LLM.Backend == "openai" || cfg.LLM.Backend == "anthropic") && cfg.LLM.APIKey == "" {
		return fmt.Errorf("api key is required for the %s backend", cfg.LLM.Backend)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be in [0, 2], got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm max_attempts must be at least 1, got %d", cfg.LLM.MaxAttempts)
	}
	if cfg.LLM.BaseDelay <= 0 || cfg.LLM.MaxDelay < cfg.LLM.BaseDelay {
		return fmt.Errorf("llm retry delays are invalid: base=%v max=%v", cfg.LLM.BaseDelay, cfg.LLM.MaxDelay)
	}

	if cfg.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator max_iterations must be at least 1, got %d", cfg.Orchestrator.MaxIterations)
	}

	if cfg.Executor.MaxWorkers < 1 {
		return fmt.Errorf("executor max_workers must be at least 1, got %d", cfg.Executor.MaxWorkers)
	}
	if cfg.Executor.StepTimeout <= 0 {
		return fmt.Errorf("executor step_timeout must be positive, got %v", cfg.Executor.StepTimeout)
	}

	if cfg.Orchestrator.EnableMemory {
		if cfg.Memory.Dimension < 1 {
			return fmt.Errorf("memory dimension must be positive, got %d", cfg.Memory.Dimension)
		}
		if cfg.Memory.TopK < 1 {
			return fmt.Errorf("memory top_k must be positive, got %d", cfg.Memory.TopK)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, s := range cfg.Schedules {
		if s.Goal == "" {
			return fmt.Errorf("schedule %q has no goal", s.Name)
		}
		if _, err := parser.Parse(s.Expr); err != nil {
			return fmt.Errorf("schedule %q has invalid cron expression %q: %w", s.Name, s.Expr, err)
		}
	}

	return nil
}
