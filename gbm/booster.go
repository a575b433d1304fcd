package gbm

import (
	"log"

	"github.com/pkg/errors"
)

//Ensemble is the driver-owned training state: parallel tree and weight
//arrays of the same length. Both are append-only across rounds, except
//that a dart drop rewrites existing weight entries in place. The driver
//is the single writer; callbacks only ever see cloned snapshots.
type Ensemble struct {
	Trees   []TreeModel
	Weights []float64
}

//Snapshot is the read-only view handed to callbacks after every round
//and returned as the final training output.
type Snapshot struct {
	Iteration    int
	RawBase      []float64
	Trees        []TreeModel
	Weights      []float64
	TrainHistory []map[string]float64
	ValidHistory []map[string]float64
}

//clone builds a snapshot whose arrays the receiver may not mutate later.
func (ens *Ensemble) clone(iteration int, rawBase []float64, trainHist, validHist []map[string]float64) *Snapshot {
	snap := &Snapshot{
		Iteration:    iteration,
		RawBase:      append([]float64(nil), rawBase...),
		Trees:        append([]TreeModel(nil), ens.Trees...),
		Weights:      append([]float64(nil), ens.Weights...),
		TrainHistory: append([]map[string]float64(nil), trainHist...),
		ValidHistory: append([]map[string]float64(nil), validHist...),
	}
	return snap
}

//TrainBoost runs the boosting loop: sample gradients, grow trees through
//the builder collaborator, blend them into the per-instance raw scores
//and score the round online. It terminates when the iteration budget is
//exhausted, when the builder produces no usable tree, or when a callback
//requests a stop; the last two are normal terminations, not errors.
func TrainBoost(train, valid *Dataset, cfg *BoostConfig, builder TreeBuilder) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rawSize := cfg.Objective.RawSize()
	evalTrain := len(cfg.EvalMetrics) > 0
	evalValid := evalTrain && valid != nil

	rawBase := cfg.BaseScore
	if rawBase == nil {
		rawBase = cfg.Objective.InitRaw(train.avgLabel(rawSize, cfg.AggregationDepth))
	}
	train.ResetRaw(rawBase)
	if evalValid {
		valid.ResetRaw(rawBase)
	}

	ens := &Ensemble{}
	var trainHist, validHist []map[string]float64
	finished := false

	for iteration := 0; iteration < cfg.MaxIter && !finished; iteration++ {
		dropped := drawDropout(cfg, iteration, len(ens.Trees))
		kDropped, err := droppedBlocks(dropped, rawSize)
		if err != nil {
			return nil, err
		}

		base := newBaseConfig(cfg, iteration, train.NumCols)
		batch := computeGradients(train, ens, rawBase, dropped, cfg, iteration)
		trees, err := builder.Train(train, batch, cfg, base)
		if err != nil {
			return nil, err
		}
		if allEmpty(trees) {
			log.Printf("iteration %d: no tree grown, stop", iteration)
			finished = true
			break
		}

		rescaled := kDropped > 0
		if rescaled {
			rescaleDroppedWeights(ens.Weights, dropped, kDropped, cfg.StepSize)
		}
		weight := newTreeWeight(cfg, kDropped)
		newStart := len(ens.Trees)
		ens.Trees = append(ens.Trees, trees...)
		for range trees {
			ens.Weights = append(ens.Weights, weight)
		}

		if err := updateRaw(train, ens, newStart, rawBase, rawSize, cfg.dart(), rescaled, cfg.Threads); err != nil {
			return nil, err
		}
		if evalValid {
			if err := updateRaw(valid, ens, newStart, rawBase, rawSize, cfg.dart(), rescaled, cfg.Threads); err != nil {
				return nil, err
			}
		}

		if evalTrain {
			values, err := evaluate(train, cfg)
			if err != nil {
				return nil, err
			}
			trainHist = append(trainHist, values)
			for _, name := range cfg.EvalMetrics {
				log.Printf("iteration %d: train %s = %g", iteration, name, values[name])
			}
		}
		if evalValid {
			values, err := evaluate(valid, cfg)
			if err != nil {
				return nil, err
			}
			validHist = append(validHist, values)
			for _, name := range cfg.EvalMetrics {
				log.Printf("iteration %d: valid %s = %g", iteration, name, values[name])
			}
		}

		if len(cfg.Callbacks) > 0 {
			snap := ens.clone(iteration, rawBase, trainHist, validHist)
			for _, callback := range cfg.Callbacks {
				if callback(snap, cfg) {
					finished = true
				}
			}
		}

		// Rewriting the vectors into fresh buffers truncates the chain
		// of incremental updates a recovery would have to replay, and
		// compacts the capacity the dart appends grew.
		if cfg.CheckpointInterval > 0 && (iteration+1)%cfg.CheckpointInterval == 0 {
			train.Raw = snapshotRaw(train)
			if evalValid {
				valid.Raw = snapshotRaw(valid)
			}
		}
	}

	numClasses := 0
	if rawSize > 1 {
		numClasses = rawSize
	}
	model := &Model{
		ObjectiveName: cfg.Objective.Name(),
		BoostType:     cfg.BoostType,
		NumClasses:    numClasses,
		RawBase:       append([]float64(nil), rawBase...),
		Weights:       append([]float64(nil), ens.Weights...),
		TrainHistory:  trainHist,
		ValidHistory:  validHist,
		objective:     cfg.Objective,
	}
	for t, tm := range ens.Trees {
		tree, ok := tm.(*Tree)
		if !ok {
			return nil, errors.Errorf("tree %d has unsupported concrete type %T", t, tm)
		}
		model.Trees = append(model.Trees, tree)
	}
	return model, nil
}

//allEmpty reports whether the builder found no valid split anywhere.
func allEmpty(trees []TreeModel) bool {
	for _, tree := range trees {
		if !tree.IsEmpty() {
			return false
		}
	}
	return true
}

//snapshotRaw deep-copies the raw score vectors of a dataset.
func snapshotRaw(ds *Dataset) [][]float64 {
	copied := make([][]float64, len(ds.Raw))
	for i, raw := range ds.Raw {
		copied[i] = append([]float64(nil), raw...)
	}
	return copied
}
