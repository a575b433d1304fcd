package gbm

import (
	"github.com/pkg/errors"
)

//Boosting disciplines.
const (
	BoostGBTree = "gbtree"
	BoostDart   = "dart"
)

//Callback receives a read-only snapshot of the model after every
//successful round. It returns true to stop training before the next
//round and may rewrite fields of the passed config for subsequent
//rounds.
type Callback func(snap *Snapshot, cfg *BoostConfig) bool

//BoostConfig collects the hyperparameters of one training run. It stays
//fixed for the duration of a round; callbacks may mutate it between
//rounds.
type BoostConfig struct {
	MaxIter         int     `json:"max_iter"`
	MaxDepth        int     `json:"max_depth"`
	StepSize        float64 `json:"step_size"`
	RegLambda       float64 `json:"reg_lambda"`
	MinGain         float64 `json:"min_gain"`
	SubSampleRatio  float64 `json:"sub_sample_ratio"`
	ColSampleByTree float64 `json:"col_sample_by_tree"`

	BoostType string  `json:"boost_type"`
	DropRate  float64 `json:"drop_rate"`
	DropSkip  float64 `json:"drop_skip"`
	MinDrop   int     `json:"min_drop"`
	MaxDrop   int     `json:"max_drop"`

	NumBaseModels      int   `json:"num_base_models"`
	Seed               int64 `json:"seed"`
	CheckpointInterval int   `json:"checkpoint_interval"`
	AggregationDepth   int   `json:"aggregation_depth"`
	Threads            int   `json:"threads"`

	BaseScore   []float64 `json:"base_score,omitempty"`
	EvalMetrics []string  `json:"eval_metrics,omitempty"`

	Objective Objective  `json:"-"`
	Callbacks []Callback `json:"-"`
}

//withDefaults fills the zero-valued knobs a caller left out.
func (cfg *BoostConfig) withDefaults() {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 5
	}
	if cfg.StepSize == 0 {
		cfg.StepSize = 0.1
	}
	if cfg.SubSampleRatio == 0 {
		cfg.SubSampleRatio = 1
	}
	if cfg.ColSampleByTree == 0 {
		cfg.ColSampleByTree = 1
	}
	if cfg.BoostType == "" {
		cfg.BoostType = BoostGBTree
	}
	if cfg.NumBaseModels == 0 {
		cfg.NumBaseModels = 1
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 20
	}
	if cfg.AggregationDepth == 0 {
		cfg.AggregationDepth = 2
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}
	if cfg.MaxDrop == 0 {
		cfg.MaxDrop = 50
	}
}

//Validate fails fast on hyperparameters outside their legal ranges.
//Configuration errors are fatal: training never starts.
func (cfg *BoostConfig) Validate() error {
	cfg.withDefaults()
	if cfg.Objective == nil {
		return errors.New("no objective configured")
	}
	if cfg.MaxIter <= 0 {
		return errors.Errorf("max_iter must be positive, got %d", cfg.MaxIter)
	}
	if cfg.MaxDepth < 1 {
		return errors.Errorf("max_depth must be at least 1, got %d", cfg.MaxDepth)
	}
	if cfg.StepSize <= 0 {
		return errors.Errorf("step_size must be positive, got %g", cfg.StepSize)
	}
	if cfg.RegLambda < 0 {
		return errors.Errorf("reg_lambda must not be negative, got %g", cfg.RegLambda)
	}
	if cfg.SubSampleRatio <= 0 || cfg.SubSampleRatio > 1 {
		return errors.Errorf("sub_sample_ratio must be in (0, 1], got %g", cfg.SubSampleRatio)
	}
	if cfg.ColSampleByTree <= 0 || cfg.ColSampleByTree > 1 {
		return errors.Errorf("col_sample_by_tree must be in (0, 1], got %g", cfg.ColSampleByTree)
	}
	switch cfg.BoostType {
	case BoostGBTree:
	case BoostDart:
		if cfg.DropRate < 0 || cfg.DropRate > 1 {
			return errors.Errorf("drop_rate must be in [0, 1], got %g", cfg.DropRate)
		}
		if cfg.DropSkip < 0 || cfg.DropSkip > 1 {
			return errors.Errorf("drop_skip must be in [0, 1], got %g", cfg.DropSkip)
		}
		if cfg.MinDrop < 0 || cfg.MaxDrop < cfg.MinDrop {
			return errors.Errorf("bad drop bounds [%d, %d]", cfg.MinDrop, cfg.MaxDrop)
		}
	default:
		return errors.Errorf("unknown boost_type %q", cfg.BoostType)
	}
	if cfg.NumBaseModels < 1 {
		return errors.Errorf("num_base_models must be at least 1, got %d", cfg.NumBaseModels)
	}
	if bs := cfg.BaseScore; bs != nil && len(bs) != cfg.Objective.RawSize() {
		return errors.Errorf("base_score length %d does not match rawSize %d",
			len(bs), cfg.Objective.RawSize())
	}
	for _, name := range cfg.EvalMetrics {
		if _, err := NewAggregator(name, cfg.Objective.RawSize()); err != nil {
			return err
		}
	}
	return nil
}

//dart reports whether the dropout discipline is active.
func (cfg *BoostConfig) dart() bool {
	return cfg.BoostType == BoostDart
}

//BaseConfig is the derived per-round configuration: the round id, the
//number of trees to grow and one column selector per tree. It is built
//once at round start and never mutated.
type BaseConfig struct {
	Iteration int
	NumTrees  int

	selectors []ColumnSelector
	rawSize   int
}

//newBaseConfig derives the configuration of one round. Each base model
//draws one selector, reused across its rawSize trees.
func newBaseConfig(cfg *BoostConfig, iteration, numCols int) *BaseConfig {
	rawSize := cfg.Objective.RawSize()
	return &BaseConfig{
		Iteration: iteration,
		NumTrees:  cfg.NumBaseModels * rawSize,
		selectors: newColumnSelectors(cfg, iteration, numCols),
		rawSize:   rawSize,
	}
}

//Selector returns the column selector of the given tree of the round.
func (base *BaseConfig) Selector(tree int) ColumnSelector {
	return base.selectors[tree/base.rawSize]
}
