package config

import (
	"time"
)

// Config is the root Kestrel configuration
type Config struct {
	// LLM backend used for planning, review and recovery advice
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Orchestration loop
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`

	// Step execution
	Executor ExecutorConfig `json:"executor" mapstructure:"executor"`

	// Vector memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Prometheus metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Recurring goals
	Schedules []ScheduleConfig `json:"schedules" mapstructure:"schedules"`

	// Workspace root all filesystem/terminal/git steps are confined to
	Workspace string `json:"workspace" mapstructure:"workspace"`

	// Data directory for the memory database and logs
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig selects and tunes the inference backend
type LLMConfig struct {
	Backend     string  `json:"backend" mapstructure:"backend"` // ollama, openai, anthropic
	Model       string  `json:"model" mapstructure:"model"`
	Host        string  `json:"host" mapstructure:"host"` // ollama server URL
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`

	// Retry policy for transient backend errors and malformed output
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" mapstructure:"max_delay"`
}

// OrchestratorConfig bounds the plan/execute/review loop
type OrchestratorConfig struct {
	MaxIterations    int  `json:"max_iterations" mapstructure:"max_iterations"`
	EnableMemory     bool `json:"enable_memory" mapstructure:"enable_memory"`
	EnableRefinement bool `json:"enable_refinement" mapstructure:"enable_refinement"`
	AutoCommit       bool `json:"auto_commit" mapstructure:"auto_commit"`
}

// ExecutorConfig bounds parallel step execution
type ExecutorConfig struct {
	MaxWorkers        int           `json:"max_workers" mapstructure:"max_workers"`
	StepTimeout       time.Duration `json:"step_timeout" mapstructure:"step_timeout"`
	CommandTimeout    time.Duration `json:"command_timeout" mapstructure:"command_timeout"`
	ForbiddenCommands []string      `json:"forbidden_commands" mapstructure:"forbidden_commands"`
}

// MemoryConfig configures the sqlite-vec store
type MemoryConfig struct {
	DBPath         string `json:"db_path" mapstructure:"db_path"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"`
	Dimension      int    `json:"dimension" mapstructure:"dimension"`
	TopK           int    `json:"top_k" mapstructure:"top_k"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
}

// ScheduleConfig declares a goal run on a cron schedule
type ScheduleConfig struct {
	Name    string `json:"name" mapstructure:"name"`
	Goal    string `json:"goal" mapstructure:"goal"`
	Expr    string `json:"expr" mapstructure:"expr"` // 5-field cron expression
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Backend:     "ollama",
			Model:       "qwen2.5-coder:14b",
			Host:        "http://localhost:11434",
			Temperature: 0.2,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:    3,
			EnableMemory:     true,
			EnableRefinement: true,
			AutoCommit:       false,
		},
		Executor: ExecutorConfig{
			MaxWorkers:     4,
			StepTimeout:    5 * time.Minute,
			CommandTimeout: 30 * time.Second,
			ForbiddenCommands: []string{
				"rm -rf",
				"sudo",
				"su ",
				"format",
				"diskpart",
			},
		},
		Memory: MemoryConfig{
			EmbeddingModel: "nomic-embed-text",
			Dimension:      768,
			TopK:           5,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9290",
		},
	}
}
