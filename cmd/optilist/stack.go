package main

import (
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"

	"github.com/optilist/optilist/internal/agent"
	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/completion"
	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/internal/market"
	"github.com/optilist/optilist/internal/orchestrator"
	"github.com/optilist/optilist/internal/state"
)

// stack holds the wired application components shared by serve and submit.
type stack struct {
	cfg    *config.Config
	gov    *budget.Governor
	orch   *orchestrator.Orchestrator
	writer *state.Writer
	db     *state.DB
	market *market.CachedSource
}

// buildStack wires the full component graph from configuration.
func buildStack(cfg *config.Config) (*stack, error) {
	registry := config.DefaultRegistry()
	if cfg.Orchestrator.RegistryPath != "" {
		var err error
		registry, err = config.LoadRegistry(cfg.Orchestrator.RegistryPath)
		if err != nil {
			return nil, err
		}
	}

	dbPath := cfg.State.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, err
	}

	writer := state.NewWriter(db, cfg.State.QueueSize, cfg.State.WriteRetries, cfg.State.RetryBackoff)

	gov := budget.NewGovernor(cfg.Budget)
	gov.SetSink(writer)
	gov.SetAlertFunc(func(a budget.Alert) {
		log.Printf("%s budget alert: %.0f%% of daily ceiling reached ($%.2f of $%.2f)",
			color.YellowString("[budget]"), a.Threshold*100, a.Spend, a.Ceiling)
	})

	svc, err := completion.NewClient(cfg.Completion)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("completion client: %w", err)
	}
	prices := completion.NewPriceTable(cfg.Completion.Pricing)

	settings := agent.CompletionSettings{
		PrimaryModel:    cfg.Completion.Model,
		FallbackModel:   cfg.Completion.FallbackModel,
		MaxOutputTokens: cfg.Completion.MaxOutputTokens,
	}

	source := market.NewHTTPSource(cfg.Marketplace)
	cached, err := market.NewCachedSource(source, cfg.Marketplace.CacheMaxEntries, cfg.Marketplace.CacheTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("market cache: %w", err)
	}

	agents := agent.NewRegistry(
		agent.NewPricingAnalyst(svc, prices, settings, cached),
		agent.NewListingOptimizer(svc, prices, settings),
		agent.NewMarketResearcher(cached),
	)

	orch := orchestrator.New(orchestrator.Config{
		Registry:    registry,
		Agents:      agents,
		Governor:    gov,
		Deadline:    cfg.Orchestrator.Deadline,
		EventBuffer: cfg.Orchestrator.EventBuffer,
		Persister:   writer,
	})

	return &stack{
		cfg:    cfg,
		gov:    gov,
		orch:   orch,
		writer: writer,
		db:     db,
		market: cached,
	}, nil
}

// close releases stack resources. The writer must have drained first.
func (s *stack) close() {
	s.orch.Shutdown()
	s.market.Close()
	s.db.Close()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
