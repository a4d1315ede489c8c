package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var metaFlags []string

	cmd := &cobra.Command{
		Use:   "submit FILE...",
		Short: "Submit files as a new upload batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMetaFlags(metaFlags)
			if err != nil {
				return err
			}

			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			id, err := c.Submit(cmd.Context(), args, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted batch %s (%d files)\n", id, len(args))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&metaFlags, "meta", "m", nil, "Destination metadata as key=value (repeatable)")
	return cmd
}

func parseMetaFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", raw)
		}
		meta[key] = value
	}
	return meta, nil
}
