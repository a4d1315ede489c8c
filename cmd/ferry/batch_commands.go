package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ferry/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show BATCH",
		Short: "Show one batch with per-item detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			batch, err := c.DescribeBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Batch:    %s\n", batch.ID)
			fmt.Fprintf(out, "Status:   %s (%d%%)\n", batch.Status, batch.Progress)
			fmt.Fprintf(out, "Items:    %d total, %d succeeded, %d failed\n",
				batch.TotalCount, batch.SuccessCount, batch.FailedCount)
			for key, value := range batch.DestinationMeta {
				fmt.Fprintf(out, "Meta:     %s=%s\n", key, value)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderItemTable(batch.Items))
			return nil
		},
	}
}

func renderItemTable(items []api.ItemView) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		detail := item.ErrorMessage
		if item.ErrorKind != "" && detail == "" {
			detail = item.ErrorKind
		}
		rows = append(rows, []string{item.OriginalName, item.MimeType, item.Status, detail})
	}
	return renderTable([]string{"FILE", "TYPE", "STATUS", "ERROR"}, nil, rows)
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry BATCH",
		Short: "Requeue the failed items of a partially failed batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := c.Retry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued failed items of %s\n", args[0])
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove BATCH",
		Aliases: []string{"rm"},
		Short:   "Remove a batch from the queue",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := c.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed batch %s\n", args[0])
			return nil
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear finished batches (or everything with --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			var cleared int
			if all {
				cleared, err = c.ClearAll(cmd.Context())
			} else {
				cleared, err = c.ClearCompleted(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d batches\n", cleared)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every batch, including unfinished ones")
	return cmd
}
