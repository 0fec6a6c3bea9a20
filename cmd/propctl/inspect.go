package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/propstore/internal/partition"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the header and section table of a partition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(cmd.Context(), localStore(), args[0])
			if err != nil {
				return err
			}
			h, err := partition.ReadHeader(data)
			if err != nil {
				return err
			}
			sections, err := partition.ReadSections(data, h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:        %s (%d bytes)\n", args[0], len(data))
			fmt.Fprintf(out, "version:     %d\n", h.Version)
			fmt.Fprintf(out, "partition:   %d\n", h.PartitionID)
			fmt.Fprintf(out, "property:    %d\n", h.PropertyID)
			fmt.Fprintf(out, "kind:        %s\n", h.Kind)
			fmt.Fprintf(out, "rows:        %d / %d\n", h.RowCount, h.Capacity)
			fmt.Fprintf(out, "compression: %s\n\n", h.Compression)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SECTION\tCODEC\tRAW\tSTORED\tCRC32")
			for _, s := range sections {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%08x\n", partition.SectionName(s.ID), s.Codec, s.RawLen, s.StoredLen, s.Checksum)
			}
			return tw.Flush()
		},
	}
}
