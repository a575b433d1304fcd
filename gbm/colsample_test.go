package gbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectorConfig(ratio float64, numBaseModels int) *BoostConfig {
	cfg := &BoostConfig{
		MaxIter:         10,
		ColSampleByTree: ratio,
		NumBaseModels:   numBaseModels,
		Objective:       SquareLoss{},
		Seed:            42,
	}
	cfg.withDefaults()
	return cfg
}

func TestFullRatioGivesTotalSelector(t *testing.T) {
	cfg := selectorConfig(1, 3)
	selectors := newColumnSelectors(cfg, 0, 100)
	require.Len(t, selectors, 3)
	for _, sel := range selectors {
		_, ok := sel.(TotalSelector)
		require.True(t, ok, "expected TotalSelector, got %T", sel)
	}
}

func TestSmallColumnSpaceGivesExactSet(t *testing.T) {
	numCols := 20
	ratio := 0.4
	cfg := selectorConfig(ratio, 2)
	selectors := newColumnSelectors(cfg, 3, numCols)
	want := int(math.Ceil(float64(numCols) * ratio))
	for _, sel := range selectors {
		set, ok := sel.(SetSelector)
		require.True(t, ok, "expected SetSelector, got %T", sel)
		require.Len(t, set.Cols, want)
		for i := 1; i < len(set.Cols); i++ {
			require.Less(t, set.Cols[i-1], set.Cols[i], "columns must be sorted and unique")
		}
		for _, col := range set.Cols {
			assert.True(t, sel.Contains(col))
		}
	}
}

func TestSmallEffectiveCountGivesExactSet(t *testing.T) {
	// The regime keys on the expected selected cardinality, not the raw
	// column count: 100 columns at ratio 0.1 sample only 10, squarely in
	// the exact-set regime.
	numCols := 100
	ratio := 0.1
	cfg := selectorConfig(ratio, 1)
	selectors := newColumnSelectors(cfg, 0, numCols)
	set, ok := selectors[0].(SetSelector)
	require.True(t, ok, "effective count 10 should use the exact SetSelector, got %T", selectors[0])
	require.Len(t, set.Cols, int(math.Ceil(float64(numCols)*ratio)))
	for _, col := range set.Cols {
		require.GreaterOrEqual(t, col, 0)
		require.Less(t, col, numCols)
	}
}

func TestTinyRatioKeepsHashSelectorLive(t *testing.T) {
	// Huge sparse column space: the threshold must round up, never to an
	// always-false selector.
	cfg := selectorConfig(3e-10, 1)
	selectors := newColumnSelectors(cfg, 0, 1<<37)
	hash, ok := selectors[0].(HashSelector)
	require.True(t, ok, "expected HashSelector, got %T", selectors[0])
	require.GreaterOrEqual(t, hash.Maximum, int64(1))
}

func TestWideColumnSpaceGivesHashSelector(t *testing.T) {
	numCols := 1000
	ratio := 0.3
	cfg := selectorConfig(ratio, 1)
	selectors := newColumnSelectors(cfg, 0, numCols)
	hash, ok := selectors[0].(HashSelector)
	require.True(t, ok, "expected HashSelector, got %T", selectors[0])

	selected := 0
	for col := 0; col < numCols; col++ {
		if hash.Contains(col) {
			selected++
		}
	}
	// Approximate-ratio regime: expected cardinality, not exact.
	assert.InDelta(t, float64(numCols)*ratio, float64(selected), 60)
}

func TestSelectorsAreDeterministic(t *testing.T) {
	for _, numCols := range []int{20, 500} {
		first := newColumnSelectors(selectorConfig(0.5, 2), 7, numCols)
		second := newColumnSelectors(selectorConfig(0.5, 2), 7, numCols)
		for m := range first {
			for col := 0; col < numCols; col++ {
				require.Equal(t, first[m].Contains(col), second[m].Contains(col),
					"numCols=%d base model %d col %d", numCols, m, col)
			}
		}
	}
}
