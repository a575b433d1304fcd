package gbm

import (
	"github.com/pkg/errors"
)

//checkEnsemble verifies the trees/weights/rawSize alignment every score
//operation relies on. A mismatch is a fatal configuration error.
func checkEnsemble(ens *Ensemble, rawSize int) error {
	if len(ens.Trees) != len(ens.Weights) {
		return errors.Errorf("ensemble has %d trees but %d weights", len(ens.Trees), len(ens.Weights))
	}
	if len(ens.Trees)%rawSize != 0 {
		return errors.Errorf("ensemble size %d is not a multiple of rawSize %d", len(ens.Trees), rawSize)
	}
	return nil
}

//recomputeRaw rebuilds every instance's raw score vector from scratch
//out of the full ensemble: the cold start path for an initial model load
//or an evaluation-only pass. Under dart the unfolded per-block outputs
//are retained behind the leading slots so later rounds can update
//incrementally.
func recomputeRaw(ds *Dataset, ens *Ensemble, rawBase []float64, rawSize int, dart bool, threads int) error {
	if err := checkEnsemble(ens, rawSize); err != nil {
		return err
	}
	numBlocks := len(ens.Trees) / rawSize
	runSpans(ds.Partitions(), threads, func(part int, span Span) {
		for i := span.Begin; i < span.End; i++ {
			ins := &ds.Instances[i]
			if !dart {
				raw := make([]float64, rawSize)
				copy(raw, rawBase)
				for t, tree := range ens.Trees {
					raw[t%rawSize] += tree.Predict(ins.Bins) * ens.Weights[t]
				}
				ds.Raw[i] = raw
				continue
			}
			raw := make([]float64, rawSize*(1+numBlocks))
			for block := 0; block < numBlocks; block++ {
				for k := 0; k < rawSize; k++ {
					t := block*rawSize + k
					raw[(1+block)*rawSize+k] = ens.Trees[t].Predict(ins.Bins)
				}
			}
			effectiveRaw(raw, ens.Weights, nil, rawBase, rawSize, true, raw[:rawSize])
			ds.Raw[i] = raw
		}
	})
	return nil
}

//updateRaw folds the trees appended this round (ens.Trees[newStart:])
//into the existing raw score vectors in place. rescaled must be true
//when a dropout round just rewrote historical weights, in which case the
//leading slots are refolded over all blocks; otherwise only the newly
//appended range contributes and older blocks stay baked in.
func updateRaw(ds *Dataset, ens *Ensemble, newStart int, rawBase []float64, rawSize int, dart, rescaled bool, threads int) error {
	if err := checkEnsemble(ens, rawSize); err != nil {
		return err
	}
	if newStart%rawSize != 0 {
		return errors.Errorf("new tree range starts at %d, not a multiple of rawSize %d", newStart, rawSize)
	}
	newTrees := ens.Trees[newStart:]
	runSpans(ds.Partitions(), threads, func(part int, span Span) {
		for i := span.Begin; i < span.End; i++ {
			ins := &ds.Instances[i]
			if !dart {
				raw := ds.Raw[i]
				for j, tree := range newTrees {
					t := newStart + j
					raw[t%rawSize] += tree.Predict(ins.Bins) * ens.Weights[t]
				}
				continue
			}
			// Block of tree t lives at raw[rawSize+t] in the dart layout,
			// so appending predictions in tree order extends the blocks.
			raw := ds.Raw[i]
			for _, tree := range newTrees {
				raw = append(raw, tree.Predict(ins.Bins))
			}
			if rescaled {
				effectiveRaw(raw, ens.Weights, nil, rawBase, rawSize, true, raw[:rawSize])
			} else {
				for j := range newTrees {
					t := newStart + j
					raw[t%rawSize] += raw[rawSize+t] * ens.Weights[t]
				}
			}
			ds.Raw[i] = raw
		}
	})
	return nil
}
