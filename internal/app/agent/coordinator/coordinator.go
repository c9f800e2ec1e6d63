// Package coordinator assembles a run from configuration: model handles,
// tools, context budgets, gateways, agent roles and the workflow graph. Its
// Query method is the single entry point of a run.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"triad/internal/agent/ports"
	"triad/internal/agent/presets"
	"triad/internal/agent/roles"
	"triad/internal/app/agent/gateway"
	"triad/internal/app/context/budget"
	"triad/internal/diff"
	"triad/internal/llm"
	"triad/internal/shared/config"
	"triad/internal/shared/logging"
	tokenutil "triad/internal/shared/token"
	"triad/internal/toolregistry"
	"triad/internal/tools/builtin"
	"triad/internal/workflow"
)

// ErrEmptyRequest is returned by Query for blank input.
var ErrEmptyRequest = errors.New("request text is empty")

// Metrics is the telemetry sink shared by the graph, gateways and budgets.
type Metrics interface {
	workflow.MetricsRecorder
	gateway.MetricsRecorder
	budget.MetricsRecorder
}

// Clients overrides the configured model handle per role. Nil fields fall
// back to the agent configuration.
type Clients struct {
	Planner ports.LLMClient
	Coder   ports.LLMClient
	Tester  ports.LLMClient
}

func (c Clients) forRole(role string) ports.LLMClient {
	switch role {
	case string(presets.PresetPlanner):
		return c.Planner
	case string(presets.PresetCoder):
		return c.Coder
	case string(presets.PresetTester):
		return c.Tester
	}
	return nil
}

// Coordinator owns one configured workflow. Query may be called
// concurrently; each call keeps its own state and change set.
// The read-only tool cache is shared between runs.
type Coordinator struct {
	cfg      config.Config
	graph    *workflow.Graph
	registry *toolregistry.Registry
	overhead *budget.OverheadTracker
	changes  *builtin.ChangeLog
	diff     *diff.Generator
	logger   *slog.Logger
	newRunID func() string
}

// New validates cfg and builds every component. A configuration error is
// returned as *config.ValidationError before anything is constructed.
func New(cfg config.Config, opts ...Option) (*Coordinator, error) {
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		diff:     diff.NewGenerator(3, false),
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		overhead: budget.NewOverheadTracker(budget.OverheadQuota{MaxTotalTokens: cfg.Compression.MaxOverheadTokens}),
		changes:  builtin.NewChangeLog(budget.RunIDFromContext),
		diff:     o.diff,
		logger:   o.logger,
		newRunID: o.newRunID,
	}

	registry, err := c.buildTools(o)
	if err != nil {
		return nil, err
	}
	c.registry = registry

	nodes, err := c.buildNodes(o)
	if err != nil {
		return nil, err
	}

	graphOpts := []workflow.Option{workflow.WithLogger(o.logger), workflow.WithTracer(o.tracer)}
	if o.metrics != nil {
		graphOpts = append(graphOpts, workflow.WithMetrics(o.metrics))
	}
	for _, l := range o.listeners {
		graphOpts = append(graphOpts, workflow.WithListener(l))
	}
	graph, err := workflow.New(nodes, cfg.Workflow.MaxIterations, graphOpts...)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	c.graph = graph
	return c, nil
}

func (c *Coordinator) buildTools(o options) (*toolregistry.Registry, error) {
	tools, err := builtin.Tools(builtin.Config{
		Workdir:      c.cfg.Tools.Workdir,
		ShellTimeout: c.cfg.Tools.ShellTimeout,
		Diff:         c.diff,
		Changes:      c.changes,
		Logger:       logging.FromSlog(o.logger, "tools"),
	})
	if err != nil {
		return nil, fmt.Errorf("build tools: %w", err)
	}
	cache := c.cfg.Tools.Cache
	return toolregistry.NewRegistry(toolregistry.CacheConfig{
		Disabled: !cache.Enabled,
		MaxSize:  cache.Size,
		TTL:      cache.TTL,
	}, tools...)
}

func (c *Coordinator) buildNodes(o options) (workflow.Nodes, error) {
	var (
		nodes    workflow.Nodes
		firstErr error
	)
	c.cfg.Agents.Each(func(role string, agentCfg *config.AgentConfig) {
		if firstErr != nil {
			return
		}
		desc, err := c.buildNode(o, presets.AgentPreset(role), *agentCfg)
		if err != nil {
			firstErr = fmt.Errorf("build %s: %w", role, err)
			return
		}
		switch presets.AgentPreset(role) {
		case presets.PresetPlanner:
			nodes.Planner = desc
		case presets.PresetCoder:
			nodes.Coder = desc
		case presets.PresetTester:
			nodes.Tester = desc
		}
	})
	return nodes, firstErr
}

func (c *Coordinator) buildNode(o options, preset presets.AgentPreset, agentCfg config.AgentConfig) (ports.AgentDescriptor, error) {
	role := string(preset)
	client := o.clients.forRole(role)
	if client == nil {
		var err error
		client, err = llm.NewClient(llm.Config{
			Provider:   agentCfg.Provider,
			Model:      agentCfg.Model,
			APIKey:     agentCfg.APIKey,
			BaseURL:    agentCfg.BaseURL,
			Timeout:    agentCfg.Timeout,
			Headers:    agentCfg.Headers,
			MaxRetries: agentCfg.MaxRetries,
		}, o.modelLogger("llm."+role))
		if err != nil {
			return ports.AgentDescriptor{}, err
		}
	}

	manager, err := c.buildBudget(o, role, client, agentCfg.SummarizeEnabled())
	if err != nil {
		return ports.AgentDescriptor{}, err
	}
	toolSet, err := presets.NewFilteredToolSet(c.registry, presets.ToolPresetFor(preset))
	if err != nil {
		return ports.AgentDescriptor{}, err
	}
	roleCfg := roles.Config{
		Client:        client,
		Tools:         toolSet,
		Temperature:   agentCfg.Temperature,
		MaxTokens:     agentCfg.MaxTokens,
		MaxToolRounds: c.cfg.Workflow.MaxToolRounds,
		BoundOutput:   manager.BoundText,
		Logger:        logging.FromSlog(o.logger, role),
	}
	gatewayOpts := []gateway.Option{
		gateway.WithLogger(logging.FromSlog(o.logger, "gateway."+role)),
		gateway.WithTracer(o.tracer),
	}
	if o.metrics != nil {
		gatewayOpts = append(gatewayOpts, gateway.WithMetrics(o.metrics))
	}

	var agent ports.Agent
	switch preset {
	case presets.PresetPlanner:
		agent, err = roles.NewPlanner(roleCfg)
	case presets.PresetTester:
		agent, err = roles.NewTester(roleCfg)
	case presets.PresetCoder:
		agent, err = roles.NewCoderTurn(roleCfg, c.cfg.Workflow.Sentinel)
	default:
		err = fmt.Errorf("unknown role %q", role)
	}
	if err != nil {
		return ports.AgentDescriptor{}, err
	}
	gw, err := gateway.New(agent, manager, gatewayOpts...)
	if err != nil {
		return ports.AgentDescriptor{}, err
	}

	if preset == presets.PresetCoder {
		loop, err := roles.NewCoderLoop(gw, c.cfg.Workflow.Sentinel,
			roles.WithMaxTurns(c.cfg.Workflow.MaxCoderTurns),
			roles.WithDeltaHandler(o.onDelta),
			roles.WithLoopLogger(logging.FromSlog(o.logger, "coder.loop")),
		)
		if err != nil {
			return ports.AgentDescriptor{}, err
		}
		return loop.Descriptor(), nil
	}
	if o.onDelta != nil {
		return streamingRunner{gw: gw, onDelta: o.onDelta}.descriptor(), nil
	}
	return gw.Descriptor(), nil
}

func (c *Coordinator) buildBudget(o options, role string, client ports.LLMClient, summarize bool) (*budget.Manager, error) {
	comp := c.cfg.Compression
	policy := budget.CompressionPolicy{
		MaxTokens:      comp.MaxTokens,
		TargetTokens:   comp.TargetTokens,
		MaxMessages:    comp.MaxMessages,
		EnableChunking: comp.EnableChunking,
		MaxChunkTokens: comp.MaxChunkTokens,
	}
	opts := []budget.Option{
		budget.WithEstimator(newEstimator(comp)),
		budget.WithChunkConcurrency(comp.ChunkConcurrency),
		budget.WithOverheadTracker(c.overhead),
		budget.WithLogger(o.modelLogger("budget."+role)),
		budget.WithTracer(o.tracer),
	}
	if o.metrics != nil {
		opts = append(opts, budget.WithMetrics(o.metrics))
	}
	if summarize {
		summarizer := budget.NewModelSummarizer(client, "")
		if comp.SummaryCacheSize > 0 {
			cached, err := budget.NewCachedSummarizer(summarizer, comp.SummaryCacheSize)
			if err != nil {
				return nil, err
			}
			summarizer = cached
		}
		opts = append(opts, budget.WithSummarizer(summarizer))
	}
	return budget.NewManager(policy, opts...)
}

func newEstimator(comp config.CompressionConfig) tokenutil.Estimator {
	if comp.Tokenizer == "tiktoken" {
		return tokenutil.NewTiktokenEstimator()
	}
	return tokenutil.NewCharEstimator(comp.CharsPerToken)
}

// Query runs the workflow for one request and returns the final state. On
// failure the returned state is the last one the graph knew.
func (c *Coordinator) Query(ctx context.Context, userText string) (ports.WorkflowState, error) {
	if strings.TrimSpace(userText) == "" {
		return ports.WorkflowState{}, ErrEmptyRequest
	}
	runID := c.newRunID()
	defer c.overhead.Reset(runID)

	state := ports.NewWorkflowState(runID, userText)
	c.logger.Info("run started", slog.String("run_id", runID), slog.Int("max_iterations", c.graph.MaxVisits()))
	return c.graph.Run(budget.WithRunID(ctx, runID), state)
}

// Changes returns the net diff of every file the given run wrote.
func (c *Coordinator) Changes(runID string) []diff.Result {
	return c.changes.Diffs(c.diff, runID)
}

// ToolCacheStats reports read-only tool cache hits and misses.
func (c *Coordinator) ToolCacheStats() (hits, misses int64) {
	return c.registry.CacheStats()
}

// Config returns the validated configuration.
func (c *Coordinator) Config() config.Config {
	return c.cfg
}

// streamingRunner drives a gateway through Stream so partial results reach
// the caller while the node runs.
type streamingRunner struct {
	gw      *gateway.Gateway
	onDelta func(ports.StateDelta)
}

func (r streamingRunner) descriptor() ports.AgentDescriptor {
	return ports.AgentDescriptor{Name: r.gw.Name(), Description: r.gw.Description(), Runner: r}
}

func (r streamingRunner) Invoke(ctx context.Context, state ports.WorkflowState) (ports.WorkflowState, error) {
	for delta, err := range r.gw.Stream(ctx, state) {
		if err != nil {
			return state, err
		}
		if delta.Final && delta.State != nil {
			return *delta.State, nil
		}
		r.onDelta(delta)
	}
	return state, fmt.Errorf("%s: stream ended without a final state", r.gw.Name())
}
