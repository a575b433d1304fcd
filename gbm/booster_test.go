package gbm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regressionDataset(t *testing.T, copies, parts int) *Dataset {
	t.Helper()
	labels := make([]float64, 0, 4*copies)
	for c := 0; c < copies; c++ {
		labels = append(labels, 0, 1, 2, 3)
	}
	return scalarDataset(t, labels, parts)
}

func TestTrainBoostFitsRegression(t *testing.T) {
	train := regressionDataset(t, 4, 2)
	cfg := &BoostConfig{
		MaxIter:     8,
		MaxDepth:    2,
		StepSize:    0.5,
		Objective:   SquareLoss{},
		EvalMetrics: []string{"rmse"},
	}

	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Len(t, model.TrainHistory, 8)
	require.Len(t, model.Trees, 8)
	require.Len(t, model.Weights, 8)

	first := model.TrainHistory[0]["rmse"]
	last := model.TrainHistory[len(model.TrainHistory)-1]["rmse"]
	assert.Less(t, last, first, "training rmse should shrink")

	for bin := 0; bin < 4; bin++ {
		bins := NewBinVector(Width8, 1)
		bins.Set(0, bin)
		score, err := model.Predict(bins)
		require.NoError(t, err)
		assert.InDelta(t, float64(bin), score[0], 0.05, "bin %d", bin)
	}
}

func TestTrainBoostTracksValidationHistory(t *testing.T) {
	train := regressionDataset(t, 4, 2)
	valid := regressionDataset(t, 2, 1)
	cfg := &BoostConfig{
		MaxIter:     5,
		MaxDepth:    2,
		StepSize:    0.5,
		Objective:   SquareLoss{},
		EvalMetrics: []string{"rmse", "mae"},
	}

	model, err := TrainBoost(train, valid, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Len(t, model.ValidHistory, len(model.TrainHistory))
	for _, values := range model.ValidHistory {
		require.Contains(t, values, "rmse")
		require.Contains(t, values, "mae")
	}
	// Train and valid draw from the same distribution here, so the
	// curves should track each other closely.
	lastTrain := model.TrainHistory[len(model.TrainHistory)-1]["rmse"]
	lastValid := model.ValidHistory[len(model.ValidHistory)-1]["rmse"]
	assert.InDelta(t, lastTrain, lastValid, 1e-9)
}

func TestTrainBoostStopsOnConstantLabels(t *testing.T) {
	train := scalarDataset(t, []float64{2, 2, 2, 2, 2, 2}, 2)
	cfg := &BoostConfig{
		MaxIter:   10,
		Objective: SquareLoss{},
	}

	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	assert.Empty(t, model.Trees, "nothing to fit, no tree should be grown")
	assert.InDelta(t, 2.0, model.RawBase[0], 1e-12, "base score should be the label mean")
}

func TestCallbackStopsTraining(t *testing.T) {
	train := regressionDataset(t, 4, 2)
	var seen []int
	cfg := &BoostConfig{
		MaxIter:   20,
		MaxDepth:  2,
		StepSize:  0.5,
		Objective: SquareLoss{},
		Callbacks: []Callback{
			func(snap *Snapshot, cfg *BoostConfig) bool {
				seen = append(seen, snap.Iteration)
				return snap.Iteration >= 2
			},
		},
	}

	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, seen)
	assert.Len(t, model.Trees, 3)
}

func TestCallbackSnapshotIsIsolated(t *testing.T) {
	train := regressionDataset(t, 4, 1)
	var snaps []*Snapshot
	cfg := &BoostConfig{
		MaxIter:   3,
		MaxDepth:  2,
		StepSize:  0.5,
		Objective: SquareLoss{},
		Callbacks: []Callback{
			func(snap *Snapshot, cfg *BoostConfig) bool {
				snaps = append(snaps, snap)
				return false
			},
		},
	}

	_, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	// Earlier snapshots must not grow as the driver appends trees.
	for i, snap := range snaps {
		assert.Len(t, snap.Trees, i+1)
		assert.Len(t, snap.Weights, i+1)
	}
}

func TestTrainBoostDartStructure(t *testing.T) {
	train := regressionDataset(t, 8, 2)
	cfg := &BoostConfig{
		MaxIter:     10,
		MaxDepth:    2,
		StepSize:    0.3,
		BoostType:   BoostDart,
		DropRate:    0.5,
		Objective:   SquareLoss{},
		EvalMetrics: []string{"rmse"},
		Seed:        7,
	}

	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Equal(t, len(model.Trees), len(model.Weights))
	require.NotEmpty(t, model.Trees)
	for t2, w := range model.Weights {
		require.Greater(t, w, 0.0, "tree %d", t2)
		require.LessOrEqual(t, w, 1.0, "tree %d", t2)
	}

	// The evaluation-only cold start must agree with the online scores
	// of the last round.
	fresh := regressionDataset(t, 8, 2)
	values, err := model.Evaluate(fresh, []string{"rmse"}, 1, 2)
	require.NoError(t, err)
	lastOnline := model.TrainHistory[len(model.TrainHistory)-1]["rmse"]
	assert.InDelta(t, lastOnline, values["rmse"], 1e-9)
}

func TestTrainBoostSoftmaxClassification(t *testing.T) {
	// Three classes keyed directly by the single binned feature.
	copies := 6
	instances := make([]Instance, 0, 3*copies)
	for c := 0; c < copies; c++ {
		for class := 0; class < 3; class++ {
			label := make([]float64, 3)
			label[class] = 1
			bins := NewBinVector(Width8, 1)
			bins.Set(0, class)
			instances = append(instances, Instance{Weight: 1, Label: label, Bins: bins})
		}
	}
	train, err := NewDataset(instances, 1, 4, 2, 3)
	require.NoError(t, err)

	cfg := &BoostConfig{
		MaxIter:     15,
		MaxDepth:    2,
		StepSize:    0.5,
		Objective:   SoftmaxLoss{NumClasses: 3},
		EvalMetrics: []string{"error"},
	}
	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Zero(t, len(model.Trees)%3, "dart-free softmax grows one tree per class per round")
	require.Equal(t, 3, model.NumClasses)

	last := model.TrainHistory[len(model.TrainHistory)-1]["error"]
	assert.InDelta(t, 0, last, 1e-9, "separable classes should be fully learned")
	for class := 0; class < 3; class++ {
		bins := NewBinVector(Width8, 1)
		bins.Set(0, class)
		score, err := model.Predict(bins)
		require.NoError(t, err)
		best := 0
		for k := 1; k < 3; k++ {
			if score[k] > score[best] {
				best = k
			}
		}
		require.Equal(t, class, best)
		assert.InDelta(t, 1.0, score[0]+score[1]+score[2], 1e-9)
	}
}

func TestPredictRawPrefixUsesWholeBlocks(t *testing.T) {
	leaf := func(v float64) *Tree {
		return &Tree{Nodes: []TreeNode{{IsLeaf: true, Value: v}}}
	}
	model := &Model{
		ObjectiveName: "softmax",
		NumClasses:    2,
		RawBase:       []float64{0, 0},
		Trees:         []*Tree{leaf(1), leaf(2), leaf(3), leaf(4)},
		Weights:       []float64{1, 1, 1, 1},
	}
	bins := NewBinVector(Width8, 1)
	out := make([]float64, 2)

	// A mid-block prefix rounds down to the last complete round.
	model.PredictRaw(bins, 3, out)
	assert.Equal(t, []float64{1, 2}, out)
	model.PredictRaw(bins, 1, out)
	assert.Equal(t, []float64{0, 0}, out)
	model.PredictRaw(bins, 10, out)
	assert.Equal(t, []float64{4, 6}, out)
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	train := regressionDataset(t, 4, 2)
	cfg := &BoostConfig{
		MaxIter:     5,
		MaxDepth:    2,
		StepSize:    0.5,
		Objective:   SquareLoss{},
		EvalMetrics: []string{"rmse"},
	}
	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.Save(filename))
	loaded, err := LoadModel(filename)
	require.NoError(t, err)

	require.Equal(t, model.ObjectiveName, loaded.ObjectiveName)
	require.Equal(t, len(model.Trees), len(loaded.Trees))
	for bin := 0; bin < 4; bin++ {
		bins := NewBinVector(Width8, 1)
		bins.Set(0, bin)
		want, err := model.Predict(bins)
		require.NoError(t, err)
		got, err := loaded.Predict(bins)
		require.NoError(t, err)
		require.InDelta(t, want[0], got[0], 1e-12, "bin %d", bin)
	}
}

func TestCheckpointKeepsScoresIntact(t *testing.T) {
	train := regressionDataset(t, 4, 2)
	cfg := &BoostConfig{
		MaxIter:            6,
		MaxDepth:           2,
		StepSize:           0.5,
		CheckpointInterval: 2,
		Objective:          SquareLoss{},
		EvalMetrics:        []string{"rmse"},
	}
	withCheckpoints, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)

	plain := regressionDataset(t, 4, 2)
	cfg2 := *cfg
	cfg2.CheckpointInterval = 1000
	without, err := TrainBoost(plain, nil, &cfg2, &HistBuilder{Threads: 1})
	require.NoError(t, err)

	for i := range withCheckpoints.TrainHistory {
		require.InDelta(t,
			without.TrainHistory[i]["rmse"],
			withCheckpoints.TrainHistory[i]["rmse"], 1e-12, "iteration %d", i)
	}
}

func TestTrainBoostRejectsBadConfig(t *testing.T) {
	train := regressionDataset(t, 1, 1)
	_, err := TrainBoost(train, nil, &BoostConfig{MaxIter: -1, Objective: SquareLoss{}}, &HistBuilder{})
	require.Error(t, err)
	_, err = TrainBoost(train, nil, &BoostConfig{MaxIter: 5}, &HistBuilder{})
	require.Error(t, err)
	_, err = TrainBoost(train, nil, &BoostConfig{
		MaxIter: 5, Objective: SquareLoss{}, BaseScore: []float64{1, 2},
	}, &HistBuilder{})
	require.Error(t, err)
}

func TestBaseScoreOverridesLabelMean(t *testing.T) {
	train := scalarDataset(t, []float64{5, 6, 7, 8}, 1)
	cfg := &BoostConfig{
		MaxIter:   4,
		MaxDepth:  2,
		StepSize:  1,
		Objective: SquareLoss{},
		BaseScore: []float64{0},
	}
	model, err := TrainBoost(train, nil, cfg, &HistBuilder{Threads: 1})
	require.NoError(t, err)
	require.Equal(t, []float64{0}, model.RawBase)
	require.NotEmpty(t, model.Trees, "a nonzero residual must grow trees")
	for bin, want := range []float64{5, 6, 7, 8} {
		bins := NewBinVector(Width8, 1)
		bins.Set(0, bin)
		score, err := model.Predict(bins)
		require.NoError(t, err)
		assert.InDelta(t, want, score[0], 1e-9, "bin %d", bin)
	}
}
