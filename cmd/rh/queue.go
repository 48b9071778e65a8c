package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockhoundapp/rockhound/internal/analysis"
	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the analysis work queue",
}

var queueEnqueueCmd = &cobra.Command{
	Use:   "enqueue <find-id>",
	Short: "Request AI identification for a find",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		worker := queue.NewWorker(a.store, nil, queue.Config{
			MaxAttempts: a.cfg.Queue.MaxAttempts,
			Logger:      a.logger("queue"),
		})
		if err := worker.Enqueue(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Queued analysis for %s\n", args[0])
		return nil
	},
}

var queueDrain bool

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process queued analysis requests",
	Long: `Run the analysis worker. With --drain, process everything pending
and exit; otherwise poll until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic.api_key is not configured")
		}

		client := analysis.NewClient(a.cfg.Anthropic.APIKey, a.cfg.Anthropic.Model,
			a.logger("analysis"))
		worker := queue.NewWorker(a.store, client, queue.Config{
			MaxAttempts:  a.cfg.Queue.MaxAttempts,
			RetryBackoff: a.cfg.Queue.RetryBackoff,
			PollInterval: a.cfg.Queue.PollInterval,
			Logger:       a.logger("queue"),
		})

		if queueDrain {
			n, err := worker.Drain(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Processed %d item(s)\n", n)
			return nil
		}
		return worker.Run(ctx)
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		counts, err := a.store.WorkCounts(ctx)
		if err != nil {
			return err
		}

		for _, status := range []model.WorkStatus{
			model.WorkPending, model.WorkProcessing, model.WorkCompleted, model.WorkFailed,
		} {
			fmt.Printf("%-12s %d\n", status, counts[status])
		}
		return nil
	},
}

func init() {
	queueRunCmd.Flags().BoolVar(&queueDrain, "drain", false, "process pending items and exit")

	queueCmd.AddCommand(queueEnqueueCmd)
	queueCmd.AddCommand(queueRunCmd)
	queueCmd.AddCommand(queueStatusCmd)
}
