package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/propstore/internal/partition"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [prefix]",
		Short: "Check every partition file below prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			store := localStore()
			names, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var bad int
			for _, name := range names {
				if !strings.HasSuffix(name, ".tpp") {
					continue
				}
				data, err := readFile(cmd.Context(), store, name)
				if err == nil {
					_, err = partition.Decode(data)
				}
				if err != nil {
					bad++
					fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n", name)
			}

			if bad > 0 {
				return fmt.Errorf("%d of %d files failed: %w", bad, len(names), partition.ErrLoadFailure)
			}
			if len(names) == 0 {
				return errors.New("no partition files found")
			}
			return nil
		},
	}
}
