package gbm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dartConfig(rawSize int) *BoostConfig {
	var objective Objective = SquareLoss{}
	if rawSize > 1 {
		objective = SoftmaxLoss{NumClasses: rawSize}
	}
	cfg := &BoostConfig{
		MaxIter:   50,
		BoostType: BoostDart,
		DropRate:  0.5,
		Objective: objective,
		Seed:      17,
	}
	cfg.withDefaults()
	cfg.MinDrop = 0
	return cfg
}

func TestNonDartNeverDrops(t *testing.T) {
	cfg := dartConfig(1)
	cfg.BoostType = BoostGBTree
	for iteration := 0; iteration < 20; iteration++ {
		require.Empty(t, drawDropout(cfg, iteration, 20))
	}
}

func TestDropSkipOneNeverDrops(t *testing.T) {
	cfg := dartConfig(1)
	cfg.DropSkip = 1
	for iteration := 0; iteration < 20; iteration++ {
		require.Empty(t, drawDropout(cfg, iteration, 20))
	}
}

func TestDroppedSetAlignsToBlocks(t *testing.T) {
	for _, rawSize := range []int{1, 3} {
		cfg := dartConfig(rawSize)
		for iteration := 0; iteration < 30; iteration++ {
			numTrees := iteration * rawSize
			dropped := drawDropout(cfg, iteration, numTrees)
			require.Zero(t, len(dropped)%rawSize,
				"rawSize %d iteration %d: dropped size %d", rawSize, iteration, len(dropped))
			// Whole blocks only: a dropped tree implies its whole block.
			for tree := range dropped {
				block := tree / rawSize
				for k := 0; k < rawSize; k++ {
					assert.True(t, dropped[block*rawSize+k],
						"block %d of rawSize %d dropped only partially", block, rawSize)
				}
			}
		}
	}
}

func TestDropCountRespectsBounds(t *testing.T) {
	cfg := dartConfig(1)
	cfg.DropRate = 1
	cfg.MaxDrop = 3
	dropped := drawDropout(cfg, 5, 20)
	if len(dropped) > 0 {
		require.LessOrEqual(t, len(dropped), 3)
	}

	cfg = dartConfig(1)
	cfg.DropRate = 0
	cfg.MinDrop = 2
	dropped = drawDropout(cfg, 5, 20)
	if len(dropped) > 0 {
		require.GreaterOrEqual(t, len(dropped), 2)
	}
}

func TestDropoutIsDeterministic(t *testing.T) {
	for iteration := 0; iteration < 25; iteration++ {
		first := drawDropout(dartConfig(1), iteration, 30)
		second := drawDropout(dartConfig(1), iteration, 30)
		require.Equal(t, first, second, "iteration %d", iteration)
	}
}

func TestDartWeightAlgebra(t *testing.T) {
	cfg := dartConfig(1)
	cfg.StepSize = 0.1

	// Two existing unit-weight blocks, one dropped.
	weights := []float64{1.0, 1.0}
	dropped := map[int]bool{0: true}
	kDropped, err := droppedBlocks(dropped, 1)
	require.NoError(t, err)
	require.Equal(t, 1, kDropped)

	assert.InDelta(t, 1/1.1, newTreeWeight(cfg, kDropped), 1e-12)
	rescaleDroppedWeights(weights, dropped, kDropped, cfg.StepSize)
	assert.InDelta(t, 1/1.1, weights[0], 1e-12)
	assert.Equal(t, 1.0, weights[1])
}

func TestNewTreeWeightWithoutDrop(t *testing.T) {
	cfg := dartConfig(1)
	cfg.StepSize = 0.3
	assert.Equal(t, 1.0, newTreeWeight(cfg, 0))

	plain := dartConfig(1)
	plain.BoostType = BoostGBTree
	plain.StepSize = 0.3
	assert.Equal(t, 0.3, newTreeWeight(plain, 0))
}

func TestDroppedBlocksRejectsPartialBlocks(t *testing.T) {
	_, err := droppedBlocks(map[int]bool{0: true, 1: true, 2: true}, 2)
	require.Error(t, err)
}
