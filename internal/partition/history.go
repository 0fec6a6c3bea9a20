package partition

import (
	"fmt"
	"iter"

	"github.com/hupe1980/propstore/internal/column"
	"github.com/hupe1980/propstore/schema"
)

// Version is one row of an entity's history.
type Version struct {
	Row int32
	column.Entry
}

// InsertProperty records a value of an entity at creationTime and links it
// into the entity's history, which runs newest to oldest starting at headRow.
//
// The new row is spliced in after every row whose creation time is strictly
// greater than creationTime, so rows with equal creation times are ordered
// newest-inserted first. The caller keeps track of the head: when the new
// row becomes the head, the returned row is the new head; otherwise the head
// is unchanged.
func (p *Partition) InsertProperty(headRow int32, creationTime int64, localID int64, v schema.Value) (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUnloaded {
		return column.NoRow, fmt.Errorf("%s: %w", p, ErrNotResident)
	}
	if v.Kind != p.cfg.Descriptor.Kind {
		return column.NoRow, fmt.Errorf("%s: %w: got %s, want %s", p, column.ErrKindMismatch, v.Kind, p.cfg.Descriptor.Kind)
	}
	maxRow := p.store.MaxRow()
	if headRow < column.NoRow || headRow >= maxRow {
		return column.NoRow, fmt.Errorf("%s: %w: head row %d, max row %d", p, column.ErrIndexOutOfBounds, headRow, maxRow)
	}

	prev := column.NoRow
	cursor := headRow
	for steps := int32(0); cursor != column.NoRow; steps++ {
		if steps >= maxRow {
			return column.NoRow, fmt.Errorf("%s: %w: no tail after %d steps from row %d", p, ErrCorruptChain, steps, headRow)
		}
		ct, err := p.store.CreationTime(cursor)
		if err != nil {
			return column.NoRow, fmt.Errorf("%s: %w", p, err)
		}
		if ct <= creationTime {
			break
		}
		prev = cursor
		if cursor, err = p.store.PrevRow(cursor); err != nil {
			return column.NoRow, fmt.Errorf("%s: %w", p, err)
		}
	}

	payload := column.PayloadSize(v)
	if payload > 0 && p.cfg.Allocator != nil && !p.cfg.Allocator.TryAcquireMemory(payload) {
		return column.NoRow, fmt.Errorf("%s: %w: %d byte value", p, ErrResourceExhausted, payload)
	}
	row, err := p.store.AddProperty(localID, v, creationTime, cursor)
	if err != nil {
		p.unreserve(payload)
		return column.NoRow, fmt.Errorf("%s: %w", p, err)
	}
	p.reserved += payload
	if prev != column.NoRow {
		if err := p.store.SetPrevRow(prev, row); err != nil {
			return column.NoRow, fmt.Errorf("%s: %w", p, err)
		}
	}
	p.entities.Add(uint64(localID))
	p.modCount++
	return row, nil
}

// Chain returns the history starting at head, newest first.
func (p *Partition) Chain(head int32) ([]Version, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state == StateUnloaded {
		return nil, fmt.Errorf("%s: %w", p, ErrNotResident)
	}
	maxRow := p.store.MaxRow()
	if head < column.NoRow || head >= maxRow {
		return nil, fmt.Errorf("%s: %w: head row %d, max row %d", p, column.ErrIndexOutOfBounds, head, maxRow)
	}

	var (
		out []Version
		acc column.Accessor
	)
	for cursor := head; cursor != column.NoRow; cursor = acc.PrevRow {
		if int32(len(out)) >= maxRow {
			return nil, fmt.Errorf("%s: %w: no tail after %d steps from row %d", p, ErrCorruptChain, len(out), head)
		}
		if _, err := p.store.LoadProperty(cursor, &acc); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, Version{Row: cursor, Entry: acc.Entry()})
	}
	return out, nil
}

// History iterates the chain starting at head, newest first. An invalid or
// corrupt chain yields nothing; use Chain to observe the error.
func (p *Partition) History(head int32) iter.Seq2[int32, column.Entry] {
	return func(yield func(int32, column.Entry) bool) {
		versions, err := p.Chain(head)
		if err != nil {
			return
		}
		for _, v := range versions {
			if !yield(v.Row, v.Entry) {
				return
			}
		}
	}
}

// ValueAt returns the version that was current at time t: the newest row
// whose creation time is not after t. It reports false when the entity had
// no value yet.
func (p *Partition) ValueAt(head int32, t int64) (Version, bool, error) {
	versions, err := p.Chain(head)
	if err != nil {
		return Version{}, false, err
	}
	for _, v := range versions {
		if v.CreationTime <= t {
			return v, true, nil
		}
	}
	return Version{}, false, nil
}
