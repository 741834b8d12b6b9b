package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ebarros/kestrel/internal/config"
	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/ebarros/kestrel/pkg/exec"
	"github.com/ebarros/kestrel/pkg/llm"
	"github.com/ebarros/kestrel/pkg/memory"
	"github.com/ebarros/kestrel/pkg/orchestrator"
	"github.com/ebarros/kestrel/pkg/plan"
	"github.com/ebarros/kestrel/pkg/review"
	"github.com/ebarros/kestrel/pkg/tools"
)

// runtime bundles everything a run needs, built once from config.
type runtime struct {
	orchestrator *orchestrator.Orchestrator
	memory       *memory.Store
	metrics      *metrics.Metrics
	registry     *tools.Registry
}

func (r *runtime) close() {
	if r.memory != nil {
		r.memory.Close()
	}
}

// buildRuntime wires the full stack: inference client, tool registry,
// memory store, planner, engine, reviewer and the orchestration loop.
func buildRuntime(cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	m := metrics.New()

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating inference provider: %w", err)
	}
	client, err := llm.NewClient(llm.ClientConfig{
		Provider: provider,
		Policy: llm.RetryPolicy{
			MaxAttempts: cfg.LLM.MaxAttempts,
			BaseDelay:   cfg.LLM.BaseDelay,
			MaxDelay:    cfg.LLM.MaxDelay,
			Multiplier:  2,
		},
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger.With().Str("component", "llm").Logger(),
		Metrics:     m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating inference client: %w", err)
	}

	var store *memory.Store
	if cfg.Orchestrator.EnableMemory {
		embedder, err := buildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		store, err = memory.NewStore(memory.Config{
			DBPath:   cfg.Memory.DBPath,
			Embedder: embedder,
			Keywords: client,
			Logger:   logger.With().Str("component", "memory").Logger(),
			Metrics:  m,
		})
		if err != nil {
			return nil, fmt.Errorf("opening memory store: %w", err)
		}
	}

	registry, err := buildRegistry(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	planner, err := plan.NewGenerator(plan.GeneratorConfig{
		Client:   client,
		Registry: registry,
		Logger:   logger.With().Str("component", "planner").Logger(),
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating planner: %w", err)
	}

	var saver exec.MemorySaver
	if store != nil {
		saver = store
	}
	stepExecutor, err := exec.NewStepExecutor(exec.ExecutorConfig{
		Registry: registry,
		Advisor:  client,
		Memory:   saver,
		Logger:   logger.With().Str("component", "executor").Logger(),
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating step executor: %w", err)
	}
	runner, err := exec.NewRunner(exec.RunnerConfig{
		Executor:    stepExecutor,
		MaxWorkers:  cfg.Executor.MaxWorkers,
		StepTimeout: cfg.Executor.StepTimeout,
		Logger:      logger.With().Str("component", "runner").Logger(),
		Metrics:     m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating runner: %w", err)
	}
	engine, err := exec.NewEngine(runner, logger.With().Str("component", "engine").Logger())
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	reviewer, err := review.NewEvaluator(client, logger.With().Str("component", "reviewer").Logger())
	if err != nil {
		return nil, fmt.Errorf("creating reviewer: %w", err)
	}

	maxIterations := cfg.Orchestrator.MaxIterations
	if !cfg.Orchestrator.EnableRefinement {
		// Without refinement every run gets exactly one attempt.
		maxIterations = 1
	}

	var mem orchestrator.MemoryStore
	if store != nil {
		mem = store
	}
	var committer orchestrator.Committer
	if cfg.Orchestrator.AutoCommit {
		committer = orchestrator.NewGitCommitter(cfg.Workspace, "", "", logger.With().Str("component", "autocommit").Logger())
	}

	loop, err := orchestrator.New(orchestrator.Config{
		Planner:       planner,
		Engine:        engine,
		Reviewer:      reviewer,
		Memory:        mem,
		Committer:     committer,
		Inference:     client,
		MaxIterations: maxIterations,
		Logger:        logger.With().Str("component", "orchestrator").Logger(),
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return &runtime{
		orchestrator: loop,
		memory:       store,
		metrics:      m,
		registry:     registry,
	}, nil
}

func buildEmbedder(cfg *config.Config) (memory.Embedder, error) {
	// OpenAI runs carry their own embedding endpoint; every other
	// backend embeds through the local Ollama server.
	if cfg.LLM.Backend == "openai" {
		return memory.NewOpenAIEmbedder(cfg.LLM.APIKey, cfg.Memory.EmbeddingModel), nil
	}
	embedder, err := memory.NewOllamaEmbedder(cfg.LLM.Host, cfg.Memory.EmbeddingModel, cfg.Memory.Dimension)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

func buildRegistry(cfg *config.Config, store *memory.Store, logger zerolog.Logger) (*tools.Registry, error) {
	fs, err := tools.NewFilesystem(cfg.Workspace, logger.With().Str("tool", "filesystem").Logger())
	if err != nil {
		return nil, fmt.Errorf("creating filesystem tool: %w", err)
	}
	terminal := tools.NewTerminal(tools.TerminalConfig{
		Workdir:   cfg.Workspace,
		Timeout:   cfg.Executor.CommandTimeout,
		Forbidden: cfg.Executor.ForbiddenCommands,
		Logger:    logger.With().Str("tool", "terminal").Logger(),
	})
	gitTool := tools.NewGit(tools.GitConfig{
		Root:   cfg.Workspace,
		Logger: logger.With().Str("tool", "git").Logger(),
	})
	web := tools.NewWeb(logger.With().Str("tool", "web").Logger())

	invokers := []tools.Invoker{fs, terminal, gitTool, web}
	if store != nil {
		invokers = append(invokers, tools.NewMemory(store, cfg.Memory.TopK))
	}

	registry, err := tools.NewRegistry(invokers...)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	return registry, nil
}
