package gbm

import (
	"github.com/pkg/errors"
)

//Instance is one discretized training or validation row. It is immutable
//once the dataset is assembled; the trainer only ever reads it.
type Instance struct {
	Weight float64
	Label  []float64
	Bins   BinVector
}

//Span is a half interval [Begin, End) of instance indices forming one
//horizontal partition of a dataset.
type Span struct {
	Begin, End int
}

//Dataset owns the instances of one data split together with their raw
//score vectors. Instances and Raw are parallel slices: entry i of Raw is
//the raw score state of instance i. The two are always produced and
//consumed together by position; nothing in this package reorders or
//re-partitions one without the other.
type Dataset struct {
	Instances []Instance
	Raw       [][]float64

	NumCols int
	NumBins int

	spans []Span
}

//NewDataset assembles a dataset from discretized instances and validates
//it against the objective's output size. numPartitions controls how the
//instance index space is divided for parallel passes.
func NewDataset(instances []Instance, numCols, numBins, numPartitions, rawSize int) (*Dataset, error) {
	if len(instances) == 0 {
		return nil, errors.New("dataset has no instances")
	}
	if numPartitions < 1 {
		numPartitions = 1
	}
	for i, ins := range instances {
		if ins.Weight < 0 {
			return nil, errors.Errorf("instance %d has negative weight %g", i, ins.Weight)
		}
		if len(ins.Label) != rawSize {
			return nil, errors.Errorf("instance %d label length %d does not match rawSize %d",
				i, len(ins.Label), rawSize)
		}
		if ins.Bins.Len() != numCols {
			return nil, errors.Errorf("instance %d has %d columns, dataset has %d",
				i, ins.Bins.Len(), numCols)
		}
	}
	ds := &Dataset{
		Instances: instances,
		NumCols:   numCols,
		NumBins:   numBins,
		spans:     splitSpans(len(instances), numPartitions),
	}
	return ds, nil
}

//splitSpans divides [0, n) into at most parts contiguous spans of nearly
//equal length.
func splitSpans(n, parts int) []Span {
	if parts > n {
		parts = n
	}
	spans := make([]Span, 0, parts)
	for p := 0; p < parts; p++ {
		begin := p * n / parts
		end := (p + 1) * n / parts
		if begin < end {
			spans = append(spans, Span{begin, end})
		}
	}
	return spans
}

//Len returns the number of instances.
func (ds *Dataset) Len() int {
	return len(ds.Instances)
}

//Partitions returns the partition spans of the instance index space.
func (ds *Dataset) Partitions() []Span {
	return ds.spans
}

//ResetRaw reinitializes every raw score vector to a copy of rawBase.
//Under plain boosting the vectors keep this length for the whole run;
//under dart they grow by one block per base model built.
func (ds *Dataset) ResetRaw(rawBase []float64) {
	if ds.Raw == nil {
		ds.Raw = make([][]float64, len(ds.Instances))
	}
	for i := range ds.Raw {
		raw := make([]float64, len(rawBase))
		copy(raw, rawBase)
		ds.Raw[i] = raw
	}
}

//avgLabel computes the weighted mean of each label output with one
//Welford pass per partition followed by a depth-bounded merge. It feeds
//the base score bootstrap.
func (ds *Dataset) avgLabel(rawSize, aggregationDepth int) []float64 {
	parts := make([][]meanAgg, len(ds.spans))
	for p, span := range ds.spans {
		aggs := make([]meanAgg, rawSize)
		for i := span.Begin; i < span.End; i++ {
			ins := &ds.Instances[i]
			if ins.Weight <= 0 {
				continue
			}
			for k := 0; k < rawSize; k++ {
				aggs[k].add(ins.Weight, ins.Label[k])
			}
		}
		parts[p] = aggs
	}
	for len(parts) > 1 {
		merged := make([][]meanAgg, 0, (len(parts)+aggregationDepth-1)/aggregationDepth)
		for begin := 0; begin < len(parts); begin += aggregationDepth {
			end := begin + aggregationDepth
			if end > len(parts) {
				end = len(parts)
			}
			group := parts[begin]
			for _, other := range parts[begin+1 : end] {
				for k := range group {
					group[k].merge(other[k])
				}
			}
			merged = append(merged, group)
		}
		parts = merged
	}
	avg := make([]float64, rawSize)
	for k, agg := range parts[0] {
		avg[k] = agg.avg
	}
	return avg
}
