// Command propctl inspects and verifies property partition files.
//
// Usage:
//
//	propctl --dir ./data inspect p000003/prop-000007.tpp
//	propctl --dir ./data dump p000003/prop-000007.tpp
//	propctl --dir ./data chain p000003/prop-000007.tpp 41
//	propctl --dir ./data verify
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/propstore/blobstore"
	"github.com/hupe1980/propstore/internal/partition"
	"github.com/hupe1980/propstore/schema"
)

var dataDir string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "propctl",
		Short:         "Inspect property partition files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&dataDir, "dir", "d", ".", "data directory of the local blob store")

	root.AddCommand(
		newInspectCmd(),
		newDumpCmd(),
		newChainCmd(),
		newVerifyCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func localStore() *blobstore.LocalStore {
	return blobstore.NewLocalStore(dataDir)
}

func readFile(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// loadPartition makes the file resident using the kind recorded in its header.
func loadPartition(ctx context.Context, store blobstore.BlobStore, name string) (*partition.Partition, error) {
	data, err := readFile(ctx, store, name)
	if err != nil {
		return nil, err
	}
	h, err := partition.ReadHeader(data)
	if err != nil {
		return nil, err
	}

	p, err := partition.New(partition.Config{
		PartitionID: h.PartitionID,
		PropertyID:  h.PropertyID,
		Descriptor:  schema.Descriptor{Kind: h.Kind},
		Capacity:    int(h.Capacity),
		Name:        name,
		Store:       store,
	})
	if err != nil {
		return nil, err
	}
	ok, err := p.LoadFromFile(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, blobstore.ErrNotFound)
	}
	return p, nil
}
