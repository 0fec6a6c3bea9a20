package column

import (
	"fmt"

	"github.com/hupe1980/propstore/schema"
)

// Accessor is a caller-owned destination for LoadProperty.
// It is reused across reads to avoid per-read allocation.
type Accessor struct {
	Row          int32
	LocalID      int64
	Value        schema.Value
	CreationTime int64
	PrevRow      int32
}

// Reset clears the accessor to the "not present" state.
func (a *Accessor) Reset() {
	*a = Accessor{Row: NoRow, PrevRow: NoRow}
}

// Entry returns the row content held by the accessor.
func (a *Accessor) Entry() Entry {
	return Entry{LocalID: a.LocalID, Value: a.Value, CreationTime: a.CreationTime, PrevRow: a.PrevRow}
}

// Store allocates rows in a bound column.
//
// Rows are appended at MaxRow and never reused. Store never rewrites the
// links of existing rows on its own; chain splicing belongs to the caller.
type Store struct {
	partitionID uint32
	col         *Column
	maxRow      int32
}

// NewStore returns an unbound store.
func NewStore() *Store {
	return &Store{}
}

// Init (re)binds the store to col and resets MaxRow to zero.
// A nil column puts the store in the released state.
func (s *Store) Init(partitionID uint32, col *Column) {
	s.partitionID = partitionID
	s.col = col
	s.maxRow = 0
}

// Bound reports whether a column is attached.
func (s *Store) Bound() bool { return s.col != nil }

// Column returns the bound column, or nil when released.
func (s *Store) Column() *Column { return s.col }

// PartitionID returns the partition the store is bound to.
func (s *Store) PartitionID() uint32 { return s.partitionID }

// MaxRow returns the next free row.
func (s *Store) MaxRow() int32 { return s.maxRow }

// Capacity returns the column capacity, or 0 when released.
func (s *Store) Capacity() int {
	if s.col == nil {
		return 0
	}
	return s.col.Capacity()
}

// SetMaxRow restores the row count after a load.
func (s *Store) SetMaxRow(n int32) error {
	if s.col == nil {
		return fmt.Errorf("partition %d: store released", s.partitionID)
	}
	if n < 0 || int(n) > s.col.Len() {
		return fmt.Errorf("%w: max row %d, extent %d", ErrIndexOutOfBounds, n, s.col.Len())
	}
	s.maxRow = n
	return nil
}

// AddProperty appends a row and returns its index.
func (s *Store) AddProperty(localID int64, v schema.Value, creationTime int64, prevPtr int32) (int32, error) {
	if s.col == nil {
		return NoRow, fmt.Errorf("partition %d: store released", s.partitionID)
	}
	if int(s.maxRow) >= s.col.Capacity() {
		return NoRow, fmt.Errorf("partition %d: %w (%d rows)", s.partitionID, ErrCapacityExceeded, s.col.Capacity())
	}
	if prevPtr < NoRow || prevPtr >= s.maxRow {
		return NoRow, fmt.Errorf("%w: prev row %d, max row %d", ErrIndexOutOfBounds, prevPtr, s.maxRow)
	}
	row := s.maxRow
	if err := s.col.Set(row, Entry{LocalID: localID, Value: v, CreationTime: creationTime, PrevRow: prevPtr}); err != nil {
		return NoRow, err
	}
	s.maxRow++
	return row, nil
}

func (s *Store) check(row int32) error {
	if row < 0 || row >= s.maxRow {
		return fmt.Errorf("%w: row %d, max row %d", ErrIndexOutOfBounds, row, s.maxRow)
	}
	return nil
}

// LoadProperty copies row into dst. It returns false when the store is
// released; dst is left reset in that case.
func (s *Store) LoadProperty(row int32, dst *Accessor) (bool, error) {
	dst.Reset()
	if s.col == nil {
		return false, nil
	}
	if err := s.check(row); err != nil {
		return false, err
	}
	e, err := s.col.Get(row)
	if err != nil {
		return false, err
	}
	dst.Row = row
	dst.LocalID = e.LocalID
	dst.Value = e.Value
	dst.CreationTime = e.CreationTime
	dst.PrevRow = e.PrevRow
	return true, nil
}

// CreationTime returns the creation time of a written row.
func (s *Store) CreationTime(row int32) (int64, error) {
	if s.col == nil {
		return 0, fmt.Errorf("partition %d: store released", s.partitionID)
	}
	if err := s.check(row); err != nil {
		return 0, err
	}
	return s.col.CreationTime(row)
}

// PrevRow returns the link of a written row.
func (s *Store) PrevRow(row int32) (int32, error) {
	if s.col == nil {
		return NoRow, fmt.Errorf("partition %d: store released", s.partitionID)
	}
	if err := s.check(row); err != nil {
		return NoRow, err
	}
	return s.col.PrevRow(row)
}

// SetPrevRow splices a written row onto a new predecessor.
func (s *Store) SetPrevRow(row, prev int32) error {
	if s.col == nil {
		return fmt.Errorf("partition %d: store released", s.partitionID)
	}
	if err := s.check(row); err != nil {
		return err
	}
	if prev < NoRow || prev >= s.maxRow {
		return fmt.Errorf("%w: prev row %d, max row %d", ErrIndexOutOfBounds, prev, s.maxRow)
	}
	return s.col.SetPrevRow(row, prev)
}
