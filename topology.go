package propstore

import (
	"fmt"
	"sync"

	"github.com/hupe1980/propstore/resource"
	"github.com/hupe1980/propstore/schema"
)

// Topology supplies what the store needs to know about the graph layout.
type Topology interface {
	// Schema returns the descriptor of a property. Unknown properties must
	// yield an error wrapping ErrUnknownProperty.
	Schema(propertyID uint32) (schema.Descriptor, error)
	// PropertyFile returns the blob name of a partition's property file.
	PropertyFile(partitionID, propertyID uint32) string
	// Allocator returns the memory budget for property columns, or nil for none.
	Allocator() resource.Allocator
}

// PropertyFileName is the default blob name layout:
// "p<partition>/prop-<property>.tpp", zero-padded to six digits.
func PropertyFileName(partitionID, propertyID uint32) string {
	return fmt.Sprintf("p%06d/prop-%06d.tpp", partitionID, propertyID)
}

// StaticTopology is a map-backed Topology.
type StaticTopology struct {
	mu         sync.RWMutex
	properties map[uint32]schema.Descriptor
	allocator  resource.Allocator
}

// NewStaticTopology creates a topology for the given properties.
// allocator may be nil.
func NewStaticTopology(properties map[uint32]schema.Descriptor, allocator resource.Allocator) *StaticTopology {
	props := make(map[uint32]schema.Descriptor, len(properties))
	for id, d := range properties {
		props[id] = d
	}
	return &StaticTopology{properties: props, allocator: allocator}
}

// Define adds or replaces a property descriptor.
func (t *StaticTopology) Define(propertyID uint32, d schema.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.properties[propertyID] = d
	t.mu.Unlock()
	return nil
}

// Schema implements Topology.
func (t *StaticTopology) Schema(propertyID uint32) (schema.Descriptor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.properties[propertyID]
	if !ok {
		return schema.Descriptor{}, fmt.Errorf("property %d: %w", propertyID, ErrUnknownProperty)
	}
	return d, nil
}

// PropertyFile implements Topology.
func (t *StaticTopology) PropertyFile(partitionID, propertyID uint32) string {
	return PropertyFileName(partitionID, propertyID)
}

// Allocator implements Topology.
func (t *StaticTopology) Allocator() resource.Allocator {
	return t.allocator
}
