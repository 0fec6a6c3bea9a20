package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the rows of a partition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPartition(cmd.Context(), localStore(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			rows := p.MaxRow()
			if limit > 0 && int32(limit) < rows {
				rows = int32(limit)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROW\tLOCAL_ID\tCREATED\tPREV\tVALUE")
			for row := int32(0); row < rows; row++ {
				e, err := p.Entry(row)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n", row, e.LocalID, e.CreationTime, e.PrevRow, e.Value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most n rows (0 = all)")
	return cmd
}
