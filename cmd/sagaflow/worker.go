package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/flows/fulfillment"
	"github.com/petrijr/sagaflow/pkg/flows/order"
	metricsprom "github.com/petrijr/sagaflow/pkg/metrics/prometheus"
	"github.com/petrijr/sagaflow/pkg/worker"
)

type workerOptions struct {
	workers     int
	metricsAddr string
	deliveries  []string
}

func newWorkerCmd(a *app) *cobra.Command {
	opts := &workerOptions{}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued workflow runs",
		Long: `worker registers the sample workflows on an engine backed by the
configured run store, serves Prometheus metrics and processes queued runs
until interrupted.`,
		Example: `  sagaflow worker --store sqlite --deliver order_01:ful_01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				a.cfg.Workers.Count = opts.workers
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = opts.metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runWorker(ctx, opts.deliveries)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.workers, "workers", 0, "number of concurrent workers")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "address serving /metrics; empty disables it")
	flags.StringSliceVar(&opts.deliveries, "deliver", nil, "enqueue a delivery run on start, as order_id:fulfillment_id")
	return cmd
}

// enqueuer schedules a workflow run on the worker pool.
type enqueuer func(ctx context.Context, workflowID string, input any) error

func (a *app) runWorker(ctx context.Context, deliveries []string) error {
	cfg, logger := a.cfg, a.logger

	inputs, err := parseDeliveries(deliveries)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	query, err := loadFixtures()
	if err != nil {
		return err
	}
	events, closeEvents, err := openEvents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	eng := sagaflow.NewEngine(sagaflow.EngineConfig{
		Store:          be.store,
		Observer:       sagaflow.NewCompositeObserver(sagaflow.NewLoggingObserver(logger), metricsprom.NewObserver(reg)),
		Logger:         logger,
		Query:          query,
		Events:         events,
		ParallelPolicy: policy,
		RecoverAfter:   cfg.RecoverAfter,
	})

	fulfillments := fulfillment.NewMemoryService(query)
	for _, def := range []*sagaflow.WorkflowDefinition{
		order.MarkOrderFulfillmentAsDeliveredWorkflow(order.Deps{
			Orders:       order.NewMemoryService(query),
			Fulfillments: fulfillments,
		}),
		fulfillment.MarkFulfillmentAsDeliveredWorkflow(fulfillments),
	} {
		if err := eng.RegisterWorkflow(def); err != nil {
			return err
		}
	}

	recovered, err := sagaflow.RecoverStuckRuns(ctx, eng)
	if err != nil {
		return fmt.Errorf("recover stuck runs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("marked interrupted runs for reconciliation", zap.Int("count", recovered))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var enqueue enqueuer
	if be.queue == nil {
		runner := sagaflow.NewLocalRunnerWithEngine(eng, logger)
		if err := runner.StartWorkers(gctx, cfg.Workers.Count); err != nil {
			return stopPool(cancel, g, err)
		}
		g.Go(func() error {
			<-gctx.Done()
			runner.Stop()
			return nil
		})
		enqueue = runner.StartRunAsync
	} else {
		bundle := sagaflow.NewWorkerBundle(eng, be.queue, worker.Config{
			MaxAttempts: cfg.Workers.MaxAttempts,
			Backoff:     cfg.Workers.Backoff,
			Logger:      logger,
		})
		for i := 0; i < cfg.Workers.Count; i++ {
			g.Go(func() error { return bundle.Worker.Run(gctx) })
		}
		enqueue = bundle.Worker.EnqueueRun
	}

	if err := enqueueDeliveries(gctx, enqueue, inputs); err != nil {
		return stopPool(cancel, g, err)
	}

	logger.Info("worker started",
		zap.String("store", cfg.Store),
		zap.String("events", cfg.Events),
		zap.Int("workers", cfg.Workers.Count))
	return g.Wait()
}

func enqueueDeliveries(ctx context.Context, enqueue enqueuer, inputs []order.MarkOrderFulfillmentAsDeliveredInput) error {
	for _, in := range inputs {
		if err := enqueue(ctx, order.MarkOrderFulfillmentAsDeliveredWorkflowID, in); err != nil {
			return fmt.Errorf("enqueue delivery %s/%s: %w", in.OrderID, in.FulfillmentID, err)
		}
	}
	return nil
}

// stopPool cancels the goroutines of g and waits for them before
// returning err.
func stopPool(cancel context.CancelFunc, g *errgroup.Group, err error) error {
	cancel()
	return errors.Join(err, g.Wait())
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func parseDeliveries(values []string) ([]order.MarkOrderFulfillmentAsDeliveredInput, error) {
	out := make([]order.MarkOrderFulfillmentAsDeliveredInput, 0, len(values))
	for _, v := range values {
		orderID, fulfillmentID, ok := strings.Cut(v, ":")
		if !ok || orderID == "" || fulfillmentID == "" {
			return nil, fmt.Errorf("invalid delivery %q: want order_id:fulfillment_id", v)
		}
		out = append(out, order.MarkOrderFulfillmentAsDeliveredInput{OrderID: orderID, FulfillmentID: fulfillmentID})
	}
	return out, nil
}
