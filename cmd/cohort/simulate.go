package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/cohort"
	"github.com/arloliu/cohort/source"
)

type simulateOptions struct {
	participants int
	workers      int
	scenarios    []string
	hold         time.Duration
}

// simulationReport summarizes one simulate run.
type simulationReport struct {
	Assigned   int            `json:"assigned"`
	Failed     int            `json:"failed"`
	Scenarios  map[string]int `json:"scenarios"`
	TaskOrders map[string]int `json:"taskOrders"`
	Elapsed    string         `json:"elapsed"`
}

func newSimulateCommand(opts *rootOptions) *cobra.Command {
	sim := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Create and assign many participants concurrently",
		Long: `Create and assign many participants concurrently and report how they
were spread across scenarios and task orders.

Use --backend memory for a throwaway run, or point it at a real store to load
test it. With --metrics-addr the Prometheus endpoint stays up for --hold after
the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, opts, sim)
		},
	}

	cmd.Flags().IntVarP(&sim.participants, "participants", "p", 100, "participants to create")
	cmd.Flags().IntVarP(&sim.workers, "workers", "w", 8, "concurrent workers")
	cmd.Flags().StringSliceVar(&sim.scenarios, "scenarios", nil, "scenario ids to use instead of the stored catalog")
	cmd.Flags().DurationVar(&sim.hold, "hold", 0, "keep the metrics endpoint up this long after the run")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *rootOptions, sim *simulateOptions) error {
	if sim.participants < 1 || sim.workers < 1 {
		return fmt.Errorf("%w: participants and workers must be >= 1", cohort.ErrInvalidArgument)
	}

	var src cohort.ScenarioSource
	if len(sim.scenarios) > 0 {
		src = source.NewStaticIDs(sim.scenarios...)
	}

	rt, err := opts.openWith(cmd.Context(), src)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	start := time.Now()
	report := simulationReport{
		Scenarios:  make(map[string]int),
		TaskOrders: make(map[string]int),
	}

	var mu sync.Mutex
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range sim.workers {
		wg.Go(func() {
			for range jobs {
				scenario, order, err := simulateOne(ctx, rt.engine)

				mu.Lock()
				if err != nil {
					report.Failed++
					opts.logger.Warn("simulated participant failed", "error", err)
				} else {
					report.Assigned++
					report.Scenarios[scenario]++
					report.TaskOrders[order]++
				}
				mu.Unlock()
			}
		})
	}

feed:
	for i := range sim.participants {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	report.Elapsed = time.Since(start).Round(time.Millisecond).String()
	opts.logger.Info("simulation finished",
		"assigned", report.Assigned,
		"failed", report.Failed,
		"scenarios", slices.Sorted(maps.Keys(report.Scenarios)),
	)
	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if opts.metricsAddr != "" && sim.hold > 0 {
		select {
		case <-time.After(sim.hold):
		case <-ctx.Done():
		}
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d participants failed", report.Failed, sim.participants)
	}

	return ctx.Err()
}

func simulateOne(ctx context.Context, eng *cohort.Engine) (string, string, error) {
	pid, err := eng.CreateParticipant(ctx)
	if err != nil {
		return "", "", err
	}
	order, err := eng.EnsureTaskOrder(ctx, pid)
	if err != nil {
		return "", "", err
	}
	a, err := eng.Assign(ctx, pid, 0)
	if err != nil {
		return "", "", err
	}

	return a.ScenarioID, order, nil
}
