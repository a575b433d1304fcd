package gbm

import (
	"math/rand"
)

//GradientBatch is the sampler output of one round: per instance, the
//loss derivatives against the current raw scores and the participation
//decisions for each of the base models grown in parallel. Grad[i] holds
//grad[0..rawSize) followed by hess[0..rawSize), both scaled by instance
//weight; a nil row is the observable "empty participation" case of an
//instance sampled into no base model this round.
type GradientBatch struct {
	RawSize       int
	NumBaseModels int
	Grad          [][]float64
	included      [][]bool
}

//Participates reports whether instance i trains base model m this round.
func (batch *GradientBatch) Participates(i, m int) bool {
	if batch.included == nil {
		return batch.Grad[i] != nil
	}
	return batch.included[i][m]
}

//computeGradients runs the gradient sampler over the dataset. Every
//per-instance computation is independent, so partitions proceed in
//parallel; row inclusion for partition p and base model m is drawn from
//a stream seeded by (seed, iteration, p, m), which makes reruns with the
//same seed and partitioning reproduce identical decisions.
func computeGradients(ds *Dataset, ens *Ensemble, rawBase []float64, dropped map[int]bool, cfg *BoostConfig, iteration int) *GradientBatch {
	rawSize := cfg.Objective.RawSize()
	batch := &GradientBatch{
		RawSize:       rawSize,
		NumBaseModels: cfg.NumBaseModels,
		Grad:          make([][]float64, ds.Len()),
	}
	sampled := cfg.SubSampleRatio < 1
	if sampled {
		batch.included = make([][]bool, ds.Len())
	}

	runSpans(ds.Partitions(), cfg.Threads, func(part int, span Span) {
		var rngs []*rand.Rand
		if sampled {
			rngs = make([]*rand.Rand, cfg.NumBaseModels)
			for m := range rngs {
				rngs[m] = rand.New(rand.NewSource(mixSeed(
					cfg.Seed, int64(iteration), int64(part), int64(m), seedStreamRows)))
			}
		}
		eff := make([]float64, rawSize)
		score := make([]float64, rawSize)
		for i := span.Begin; i < span.End; i++ {
			participates := true
			if sampled {
				in := make([]bool, cfg.NumBaseModels)
				participates = false
				for m := range in {
					if rngs[m].Float64() < cfg.SubSampleRatio {
						in[m] = true
						participates = true
					}
				}
				batch.included[i] = in
			}
			if !participates {
				continue
			}
			ins := &ds.Instances[i]
			effectiveRaw(ds.Raw[i], ens.Weights, dropped, rawBase, rawSize, cfg.dart(), eff)
			cfg.Objective.Transform(eff, score)
			gh := make([]float64, 2*rawSize)
			cfg.Objective.Gradients(ins.Label, score, gh[:rawSize], gh[rawSize:])
			for k := range gh {
				gh[k] *= ins.Weight
			}
			batch.Grad[i] = gh
		}
	})
	return batch
}

//effectiveRaw writes the raw output the gradient computation should see
//into out. Plain boosting reads the vector verbatim. Dart refolds from
//the stored base score over every historical block outside the dropped
//set: dropped blocks are excluded from this round's gradients only, they
//are never removed from the ensemble.
func effectiveRaw(raw, weights []float64, dropped map[int]bool, rawBase []float64, rawSize int, dart bool, out []float64) {
	if !dart {
		copy(out, raw[:rawSize])
		return
	}
	copy(out, rawBase)
	numBlocks := len(raw)/rawSize - 1
	for block := 0; block < numBlocks; block++ {
		if dropped[block*rawSize] {
			continue
		}
		for k := 0; k < rawSize; k++ {
			out[k] += raw[(1+block)*rawSize+k] * weights[block*rawSize+k]
		}
	}
}
