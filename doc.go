// Package propstore is an embedded storage engine for the properties of
// temporal graph entities.
//
// Each property of each graph partition is stored as a fixed-capacity typed
// column. Every write appends a row; an entity's history is a linked list of
// rows threaded through a previous-row column, ordered newest to oldest by
// creation time. Writes may arrive out of order: a value older than the
// current head is spliced into its place in the chain.
//
// # Quick Start
//
//	topo := propstore.NewStaticTopology(map[uint32]schema.Descriptor{
//	    1: {Name: "age", Kind: schema.KindInt},
//	    2: {Name: "name", Kind: schema.KindString},
//	}, nil)
//
//	db, _ := propstore.Open(blobstore.NewLocalStore("./data"), topo,
//	    propstore.WithPartitionSize(1<<16),
//	    propstore.WithCacheCapacity(128),
//	)
//	defer db.Close(ctx)
//
//	key := propstore.Key{PartitionID: 3, PropertyID: 1}
//	head, _ := db.InsertProperty(ctx, key, 42, propstore.NoRow, 100, schema.Int(30))
//	head, _ = db.InsertProperty(ctx, key, 42, head, 200, schema.Int(31))
//
//	p, _ := db.ReadPropertyAt(ctx, key, head)
//	v, ok, _ := db.ValueAt(ctx, key, head, 150) // age at t=150
//
// # Head Rows
//
// The store does not index entities: the caller keeps the head row of every
// entity's chain (typically in the entity record of the graph). InsertProperty
// returns the new row; it is the new head only if no existing row in the chain
// is newer. Callers that cannot tell should compare creation times or read the
// returned row's PrevRow: the new row is the head iff its PrevRow is the old head.
//
// # Residency
//
// Partitions are loaded on demand and kept in an LRU cache bounded by
// WithCacheCapacity. Evicted partitions are saved first if dirty. FlushAll
// persists every dirty resident partition; Close flushes and releases all.
//
// # Cloud Storage
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("graphs/social"))
//	db, _ := propstore.Open(s3Store, topo)
package propstore
