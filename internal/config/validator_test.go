package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workspace = "/tmp"
	cfg.DataDir = "/tmp/.kestrel"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil config", nil},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "bard" }},
		{"missing model", func(c *Config) { c.LLM.Model = "" }},
		{"ollama without host", func(c *Config) { c.LLM.Host = "" }},
		{"openai without key", func(c *Config) { c.LLM.Backend = "openai"; c.LLM.APIKey = "" }},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3.5 }},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
		{"max delay below base", func(c *Config) { c.LLM.MaxDelay = c.LLM.BaseDelay / 2 }},
		{"zero iterations", func(c *Config) { c.Orchestrator.MaxIterations = 0 }},
		{"zero workers", func(c *Config) { c.Executor.MaxWorkers = 0 }},
		{"zero step timeout", func(c *Config) { c.Executor.StepTimeout = 0 }},
		{"zero memory dimension", func(c *Config) { c.Memory.Dimension = 0 }},
		{"schedule without goal", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "nightly", Expr: "0 2 * * *"}}
		}},
		{"schedule with bad expr", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "bad", Goal: "tidy up", Expr: "not-cron"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate == nil {
				assert.Error(t, Validate(nil))
				return
			}
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateMemoryIgnoredWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Orchestrator.EnableMemory = false
	cfg.Memory.Dimension = 0
	cfg.Memory.TopK = 0
	assert.NoError(t, Validate(cfg))
}
