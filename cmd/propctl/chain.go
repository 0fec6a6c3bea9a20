package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain <file> <head-row>",
		Short: "Walk an entity history from its head row, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			head, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid head row %q: %w", args[1], err)
			}

			p, err := loadPartition(cmd.Context(), localStore(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			versions, err := p.Chain(int32(head))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range versions {
				fmt.Fprintf(out, "row %d  t=%d  %s\n", v.Row, v.CreationTime, v.Value)
			}
			return nil
		},
	}
}
