package mmap

import (
	"errors"
	"fmt"
)

// Advice tells the kernel how a mapped partition file will be read.
type Advice int

const (
	// AdviceNormal removes earlier hints.
	AdviceNormal Advice = iota
	// AdviceSequential suits the single decoding pass a load makes.
	AdviceSequential
	// AdviceWillNeed starts reading the whole file ahead of decoding.
	AdviceWillNeed
)

func (a Advice) String() string {
	switch a {
	case AdviceNormal:
		return "normal"
	case AdviceSequential:
		return "sequential"
	case AdviceWillNeed:
		return "willneed"
	default:
		return fmt.Sprintf("advice(%d)", int(a))
	}
}

var (
	// ErrClosed is returned by a File after Close.
	ErrClosed = errors.New("mmap: file is closed")
	// ErrTooLarge is returned for files that do not fit the address space.
	ErrTooLarge = errors.New("mmap: file too large to map")
)
