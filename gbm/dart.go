package gbm

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

//drawDropout re-runs the dropout decision for one round and returns the
//set of dropped tree indices. The set is recomputed from scratch every
//round and is always a union of whole base-model blocks of rawSize
//trees. Outside dart, and on skip rounds, it is empty.
func drawDropout(cfg *BoostConfig, iteration, numTrees int) map[int]bool {
	dropped := make(map[int]bool)
	if !cfg.dart() {
		return dropped
	}
	rawSize := cfg.Objective.RawSize()
	numBlocks := numTrees / rawSize
	if numBlocks == 0 {
		return dropped
	}
	rng := rand.New(rand.NewSource(mixSeed(cfg.Seed, int64(iteration), seedStreamDropout)))
	if cfg.DropSkip == 1 || rng.Float64() >= 1-cfg.DropSkip {
		return dropped
	}
	k := int(math.Ceil(float64(numBlocks) * cfg.DropRate))
	if k < cfg.MinDrop {
		k = cfg.MinDrop
	}
	if k > cfg.MaxDrop {
		k = cfg.MaxDrop
	}
	if k > numBlocks {
		k = numBlocks
	}
	if k == 0 {
		return dropped
	}
	for _, block := range rng.Perm(numBlocks)[:k] {
		for t := block * rawSize; t < (block+1)*rawSize; t++ {
			dropped[t] = true
		}
	}
	return dropped
}

//droppedBlocks converts a dropped tree set into its block count,
//checking the whole-blocks invariant.
func droppedBlocks(dropped map[int]bool, rawSize int) (int, error) {
	if len(dropped)%rawSize != 0 {
		return 0, errors.Errorf("dropped set size %d is not a multiple of rawSize %d",
			len(dropped), rawSize)
	}
	return len(dropped) / rawSize, nil
}

//newTreeWeight is the weight every tree built this round receives. With
//k blocks dropped the new trees blend in at 1/(k+stepSize); without a
//drop, plain boosting shrinks by the step size while dart applies the
//tree at full weight.
func newTreeWeight(cfg *BoostConfig, kDropped int) float64 {
	if cfg.dart() {
		if kDropped > 0 {
			return 1 / (float64(kDropped) + cfg.StepSize)
		}
		return 1
	}
	return cfg.StepSize
}

//rescaleDroppedWeights shrinks every dropped tree's weight by
//k/(k+stepSize) so the re-included trees plus the new ones keep the
//ensemble output calibrated. Weights of trees outside the dropped set
//are untouched.
func rescaleDroppedWeights(weights []float64, dropped map[int]bool, kDropped int, stepSize float64) {
	factor := float64(kDropped) / (float64(kDropped) + stepSize)
	for t := range dropped {
		weights[t] *= factor
	}
}
