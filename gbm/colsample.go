package gbm

import (
	"math"
	"math/rand"
	"sort"
)

//ColumnSelector restricts which feature columns a tree may split on.
type ColumnSelector interface {
	Contains(col int) bool
}

//hashSetThreshold is the effective column count (expected selected
//cardinality) above which the exact sampled set is traded for the
//O(1)-memory hashing selector.
const hashSetThreshold = 32

//TotalSelector selects every column. It is the allocation-free regime
//used when column sampling is off.
type TotalSelector struct{}

func (TotalSelector) Contains(int) bool { return true }

//HashSelector selects a column iff its seeded hash falls below Maximum
//inside the signed 32-bit range. The selected cardinality is the
//expected ratio, not an exact count, in exchange for a footprint that
//does not depend on the column count.
type HashSelector struct {
	Maximum int64
	Seed    uint64
}

func (s HashSelector) Contains(col int) bool {
	return int64(hashColumn(col, s.Seed)%uint64(math.MaxInt32)) < s.Maximum
}

//SetSelector holds an explicit sorted sample of selected columns. Exact
//ratio, memory linear in the sample size.
type SetSelector struct {
	Cols []int
}

func (s SetSelector) Contains(col int) bool {
	i := sort.SearchInts(s.Cols, col)
	return i < len(s.Cols) && s.Cols[i] == col
}

//newColumnSelectors draws one selector per base model for a round. The
//draws come from a stream seeded by (run seed, iteration), so a rerun
//with the same seed rebuilds the same selectors.
func newColumnSelectors(cfg *BoostConfig, iteration, numCols int) []ColumnSelector {
	selectors := make([]ColumnSelector, cfg.NumBaseModels)
	if cfg.ColSampleByTree == 1 {
		for m := range selectors {
			selectors[m] = TotalSelector{}
		}
		return selectors
	}
	rng := rand.New(rand.NewSource(mixSeed(cfg.Seed, int64(iteration), seedStreamColumns)))
	for m := range selectors {
		if float64(numCols)*cfg.ColSampleByTree > hashSetThreshold {
			selectors[m] = HashSelector{
				Maximum: int64(math.Ceil(cfg.ColSampleByTree * math.MaxInt32)),
				Seed:    rng.Uint64(),
			}
			continue
		}
		take := int(math.Ceil(float64(numCols) * cfg.ColSampleByTree))
		cols := rng.Perm(numCols)[:take]
		sort.Ints(cols)
		selectors[m] = SetSelector{Cols: cols}
	}
	return selectors
}

//Stream discriminators keep the per-concern rng streams of one round
//from colliding on the same (seed, iteration) coordinates.
const (
	seedStreamColumns int64 = iota + 1
	seedStreamDropout
	seedStreamRows
)
