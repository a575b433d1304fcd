package gbm

import (
	"math"

	"github.com/pkg/errors"
)

//IntWidth is the storage width, in bytes, of a bounded integer id space.
//A run selects one width per id space (columns, bins, trees, nodes) up
//front and keeps it for the whole training run.
type IntWidth int

const (
	Width8  IntWidth = 1
	Width16 IntWidth = 2
	Width32 IntWidth = 4
	Width64 IntWidth = 8
)

//WidthFor returns the smallest signed integer width whose range covers
//the half interval [0, bound). The bound is exclusive.
func WidthFor(bound int64) (IntWidth, error) {
	switch {
	case bound <= 0:
		return 0, errors.Errorf("id space bound must be positive, got %d", bound)
	case bound <= math.MaxInt8+1:
		return Width8, nil
	case bound <= math.MaxInt16+1:
		return Width16, nil
	case bound <= math.MaxInt32+1:
		return Width32, nil
	default:
		return Width64, nil
	}
}

//BinVector is one row of discretized features: a bin id per column,
//stored behind the narrowest width that covers the bin id space.
type BinVector struct {
	width IntWidth
	b8    []int8
	b16   []int16
	b32   []int32
	b64   []int64
}

//NewBinVector allocates a bin row of n columns with the given width.
func NewBinVector(width IntWidth, n int) BinVector {
	bv := BinVector{width: width}
	switch width {
	case Width8:
		bv.b8 = make([]int8, n)
	case Width16:
		bv.b16 = make([]int16, n)
	case Width32:
		bv.b32 = make([]int32, n)
	default:
		bv.b64 = make([]int64, n)
	}
	return bv
}

//Len returns the number of columns in the row.
func (bv BinVector) Len() int {
	switch bv.width {
	case Width8:
		return len(bv.b8)
	case Width16:
		return len(bv.b16)
	case Width32:
		return len(bv.b32)
	default:
		return len(bv.b64)
	}
}

//At returns the bin id of the given column.
func (bv BinVector) At(col int) int {
	switch bv.width {
	case Width8:
		return int(bv.b8[col])
	case Width16:
		return int(bv.b16[col])
	case Width32:
		return int(bv.b32[col])
	default:
		return int(bv.b64[col])
	}
}

//Set stores a bin id into the given column. The caller guarantees the
//id fits the width chosen by WidthFor at discretization time.
func (bv BinVector) Set(col, bin int) {
	switch bv.width {
	case Width8:
		bv.b8[col] = int8(bin)
	case Width16:
		bv.b16[col] = int16(bin)
	case Width32:
		bv.b32[col] = int32(bin)
	default:
		bv.b64[col] = int64(bin)
	}
}
