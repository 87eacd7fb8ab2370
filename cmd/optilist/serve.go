package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/internal/orchestrator"
	"github.com/optilist/optilist/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow submission API",
	Long: `Start the HTTP submission API and the background persistence writer.

Workflows are accepted over POST /api/v1/workflows and run concurrently
under the configured deadline and budget. The process drains pending
history writes before exiting on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server.Addr, st.orch, st.gov)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return st.writer.Run(gctx) })
	g.Go(func() error {
		logEvents(gctx, st.orch)
		return nil
	})

	return g.Wait()
}

// logEvents mirrors the orchestrator's event stream into the process log.
func logEvents(ctx context.Context, orch *orchestrator.Orchestrator) {
	for {
		select {
		case ev := <-orch.Events():
			switch ev.Type {
			case orchestrator.EventAgentResult:
				log.Printf("[serve] workflow %s agent %s confidence=%.2f cost=$%.4f",
					ev.WorkflowID, ev.AgentID, ev.Confidence, ev.Cost)
			case orchestrator.EventWorkflowCompleted:
				log.Printf("[serve] workflow %s completed confidence=%.2f (%s)",
					ev.WorkflowID, ev.Confidence, ev.Message)
			case orchestrator.EventWorkflowFailed:
				log.Printf("[serve] workflow %s failed: %s", ev.WorkflowID, ev.Message)
			default:
				log.Printf("[serve] workflow %s %s", ev.WorkflowID, ev.Type)
			}
		case <-ctx.Done():
			return
		}
	}
}
