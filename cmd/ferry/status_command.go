package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ferry/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and the upload queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}

			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			batches, err := c.ListBatches(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:      %s (pid %d)\n", runningLabel(status.Running), status.PID)
			fmt.Fprintf(out, "Uploads:     %d active / %d max\n", status.ActiveCount, status.MaxConcurrency)
			fmt.Fprintf(out, "Durability:  %s\n", durableLabel(status.Durable))
			fmt.Fprintf(out, "Items:       %d pending, %d processing, %d success, %d failed\n",
				status.Queue.Pending, status.Queue.Processing, status.Queue.Success, status.Queue.Failed)

			if len(batches) == 0 {
				fmt.Fprintln(out, "\nQueue is empty.")
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderBatchTable(batches))
			return nil
		},
	}
}

func renderBatchTable(batches []api.BatchView) string {
	rows := make([][]string, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, []string{
			batch.ID,
			batch.Status,
			strconv.Itoa(batch.Progress) + "%",
			fmt.Sprintf("%d/%d", batch.ProcessedCount, batch.TotalCount),
			strconv.Itoa(batch.FailedCount),
			batch.CreatedAt,
		})
	}
	return renderTable(
		[]string{"BATCH", "STATUS", "PROGRESS", "PROCESSED", "FAILED", "CREATED"},
		[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignLeft},
		rows,
	)
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func durableLabel(durable bool) string {
	if durable {
		return "persistent"
	}
	return "memory only"
}
