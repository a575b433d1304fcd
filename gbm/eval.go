package gbm

import (
	"math"

	"github.com/pkg/errors"
)

//Aggregator is a streaming, mergeable evaluation statistic. Add consumes
//one (weight, label, score) observation; Merge folds in another
//aggregator of the same kind built over a disjoint shard. Instances with
//weight <= 0 never count.
type Aggregator interface {
	Name() string
	Add(weight float64, label, score []float64)
	Merge(other Aggregator) error
	Value() float64
}

//aucBins is the histogram resolution of the AUC aggregator.
const aucBins = 1 << 16

//NewAggregator builds the named aggregator. Scalar metrics fail fast
//when the objective produces more than one output.
func NewAggregator(name string, rawSize int) (Aggregator, error) {
	switch name {
	case "mse":
		return &meanMetric{name: name, point: squaredError}, nil
	case "rmse":
		return &meanMetric{name: name, point: squaredError, finish: math.Sqrt}, nil
	case "mae":
		return &meanMetric{name: name, point: absError}, nil
	case "logloss":
		if rawSize != 1 {
			return nil, errors.Errorf("logloss needs a scalar score, objective has rawSize %d", rawSize)
		}
		return &meanMetric{name: name, point: logLossPoint}, nil
	case "error":
		return &meanMetric{name: name, point: classError}, nil
	case "r2":
		if rawSize != 1 {
			return nil, errors.Errorf("r2 needs a scalar label, objective has rawSize %d", rawSize)
		}
		return &r2Metric{}, nil
	case "auc":
		if rawSize != 1 {
			return nil, errors.Errorf("auc needs a scalar score, objective has rawSize %d", rawSize)
		}
		return &aucMetric{pos: make([]float64, aucBins), neg: make([]float64, aucBins)}, nil
	default:
		return nil, errors.Errorf("unknown eval metric %q", name)
	}
}

//meanAgg is a weighted running mean maintained with the Welford update.
//Merging two partial means is exact and order independent, which is what
//makes the per-partition statistics safe to tree-reduce.
type meanAgg struct {
	count float64
	avg   float64
}

func (a *meanAgg) add(w, x float64) {
	a.count += w
	a.avg += (x - a.avg) * w / a.count
}

func (a *meanAgg) merge(o meanAgg) {
	if o.count == 0 {
		return
	}
	a.count += o.count
	a.avg += (o.avg - a.avg) * o.count / a.count
}

//pointFunc maps one (label, score) pair to the value being averaged.
type pointFunc func(label, score []float64) float64

func squaredError(label, score []float64) float64 {
	var s float64
	for k := range label {
		d := score[k] - label[k]
		s += d * d
	}
	return s / float64(len(label))
}

func absError(label, score []float64) float64 {
	var s float64
	for k := range label {
		s += math.Abs(score[k] - label[k])
	}
	return s / float64(len(label))
}

func logLossPoint(label, score []float64) float64 {
	p := clampProb(score[0])
	if label[0] > 0.5 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

//classError is 0/1 disagreement: thresholded at 0.5 for a scalar score,
//argmax against the one-hot label otherwise.
func classError(label, score []float64) float64 {
	if len(label) == 1 {
		pred := 0.0
		if score[0] >= 0.5 {
			pred = 1
		}
		if pred != label[0] {
			return 1
		}
		return 0
	}
	best, target := 0, 0
	for k := 1; k < len(label); k++ {
		if score[k] > score[best] {
			best = k
		}
		if label[k] > label[target] {
			target = k
		}
	}
	if best != target {
		return 1
	}
	return 0
}

//meanMetric is the family of mean-based losses: a Welford mean over a
//pointwise error, with an optional final transform (rmse).
type meanMetric struct {
	name   string
	point  pointFunc
	finish func(float64) float64
	agg    meanAgg
}

func (m *meanMetric) Name() string { return m.name }

func (m *meanMetric) Add(weight float64, label, score []float64) {
	if weight <= 0 {
		return
	}
	m.agg.add(weight, m.point(label, score))
}

func (m *meanMetric) Merge(other Aggregator) error {
	o, ok := other.(*meanMetric)
	if !ok || o.name != m.name {
		return errors.Errorf("cannot merge %q into %q", other.Name(), m.name)
	}
	m.agg.merge(o.agg)
	return nil
}

func (m *meanMetric) Value() float64 {
	v := m.agg.avg
	if m.finish != nil {
		v = m.finish(v)
	}
	return v
}

//r2Metric tracks the label mean, the label square mean and the squared
//error mean, and derives 1 - err/var at read time. Zero label variance
//yields the degenerate division the caller must treat as undefined.
type r2Metric struct {
	label   meanAgg
	labelSq meanAgg
	errSq   meanAgg
}

func (m *r2Metric) Name() string { return "r2" }

func (m *r2Metric) Add(weight float64, label, score []float64) {
	if weight <= 0 {
		return
	}
	d := score[0] - label[0]
	m.label.add(weight, label[0])
	m.labelSq.add(weight, label[0]*label[0])
	m.errSq.add(weight, d*d)
}

func (m *r2Metric) Merge(other Aggregator) error {
	o, ok := other.(*r2Metric)
	if !ok {
		return errors.Errorf("cannot merge %q into r2", other.Name())
	}
	m.label.merge(o.label)
	m.labelSq.merge(o.labelSq)
	m.errSq.merge(o.errSq)
	return nil
}

func (m *r2Metric) Value() float64 {
	variance := m.labelSq.avg - m.label.avg*m.label.avg
	return 1 - m.errSq.avg/variance
}

//aucMetric histograms positive and negative weight mass over the
//predicted positive-class probability and integrates the empirical ROC
//curve at read time. Merge is element-wise, so shard order is
//irrelevant.
type aucMetric struct {
	pos []float64
	neg []float64
}

func (m *aucMetric) Name() string { return "auc" }

func (m *aucMetric) Add(weight float64, label, score []float64) {
	if weight <= 0 {
		return
	}
	bin := int(score[0] * aucBins)
	if bin < 0 {
		bin = 0
	}
	if bin >= aucBins {
		bin = aucBins - 1
	}
	if label[0] > 0.5 {
		m.pos[bin] += weight
	} else {
		m.neg[bin] += weight
	}
}

func (m *aucMetric) Merge(other Aggregator) error {
	o, ok := other.(*aucMetric)
	if !ok {
		return errors.Errorf("cannot merge %q into auc", other.Name())
	}
	for i := range m.pos {
		m.pos[i] += o.pos[i]
		m.neg[i] += o.neg[i]
	}
	return nil
}

func (m *aucMetric) Value() float64 {
	var posTotal, negTotal float64
	for i := range m.pos {
		posTotal += m.pos[i]
		negTotal += m.neg[i]
	}
	// Zero mass on either side divides to NaN; defined as degenerate.
	var auc, truePos float64
	for bin := aucBins - 1; bin >= 0; bin-- {
		posMass := m.pos[bin] / posTotal
		negMass := m.neg[bin] / negTotal
		auc += negMass * (truePos + posMass/2)
		truePos += posMass
	}
	return auc
}

//evaluate runs the configured aggregators over a dataset: one set per
//partition, then a depth-bounded tree merge so very wide partition
//counts do not reduce through a single point.
func evaluate(ds *Dataset, cfg *BoostConfig) (map[string]float64, error) {
	if len(cfg.EvalMetrics) == 0 {
		return nil, nil
	}
	rawSize := cfg.Objective.RawSize()
	spans := ds.Partitions()
	parts := make([][]Aggregator, len(spans))
	errs := make([]error, len(spans))
	runSpans(spans, cfg.Threads, func(part int, span Span) {
		aggs := make([]Aggregator, len(cfg.EvalMetrics))
		for j, name := range cfg.EvalMetrics {
			agg, err := NewAggregator(name, rawSize)
			if err != nil {
				errs[part] = err
				return
			}
			aggs[j] = agg
		}
		score := make([]float64, rawSize)
		for i := span.Begin; i < span.End; i++ {
			ins := &ds.Instances[i]
			cfg.Objective.Transform(ds.Raw[i][:rawSize], score)
			for _, agg := range aggs {
				agg.Add(ins.Weight, ins.Label, score)
			}
		}
		parts[part] = aggs
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	merged, err := treeMerge(parts, cfg.AggregationDepth)
	if err != nil {
		return nil, err
	}
	values := make(map[string]float64, len(merged))
	for _, agg := range merged {
		values[agg.Name()] = agg.Value()
	}
	return values, nil
}

//treeMerge folds per-partition aggregator sets pairwise in groups of
//fanout until one set remains. The grouping bounds the reduction depth;
//correctness only needs Merge to be commutative and associative.
func treeMerge(parts [][]Aggregator, fanout int) ([]Aggregator, error) {
	if fanout < 2 {
		fanout = 2
	}
	for len(parts) > 1 {
		merged := make([][]Aggregator, 0, (len(parts)+fanout-1)/fanout)
		for begin := 0; begin < len(parts); begin += fanout {
			end := begin + fanout
			if end > len(parts) {
				end = len(parts)
			}
			group := parts[begin]
			for _, other := range parts[begin+1 : end] {
				for j := range group {
					if err := group[j].Merge(other[j]); err != nil {
						return nil, err
					}
				}
			}
			merged = append(merged, group)
		}
		parts = merged
	}
	return parts[0], nil
}
