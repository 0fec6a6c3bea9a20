package propstore_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/propstore"
	"github.com/hupe1980/propstore/blobstore"
	"github.com/hupe1980/propstore/schema"
)

func Example() {
	ctx := context.Background()

	topo := propstore.NewStaticTopology(map[uint32]schema.Descriptor{
		1: {Name: "city", Kind: schema.KindString},
	}, nil)

	db, err := propstore.Open(blobstore.NewMemoryStore(), topo)
	if err != nil {
		panic(err)
	}
	defer db.Close(ctx)

	key := propstore.Key{PartitionID: 0, PropertyID: 1}
	head, _ := db.InsertProperty(ctx, key, 42, propstore.NoRow, 2019, schema.String("Berlin"))
	head, _ = db.InsertProperty(ctx, key, 42, head, 2023, schema.String("Lisbon"))
	// a late write about 2021 lands between the two
	_, _ = db.InsertProperty(ctx, key, 42, head, 2021, schema.String("Vienna"))

	history, _ := db.History(ctx, key, head)
	for _, p := range history {
		fmt.Println(p.CreationTime, p.Value)
	}

	p, _, _ := db.ValueAt(ctx, key, head, 2022)
	fmt.Println("2022:", p.Value)

	// Output:
	// 2023 "Lisbon"
	// 2021 "Vienna"
	// 2019 "Berlin"
	// 2022: "Vienna"
}
