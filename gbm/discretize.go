package gbm

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

//Discretizer is the fitted binning collaborator: a mapping from a raw
//feature row to a compact bin row, plus the metadata the id width
//selection needs.
type Discretizer interface {
	Transform(row []float64) BinVector
	NumCols() int
	NumBins() int
}

//QuantileDiscretizer bins each column at fitted quantile cut points.
//Cuts[c] is ascending; a value lands in the index of the first cut above
//it, so columns produce at most len(Cuts[c])+1 distinct bins.
type QuantileDiscretizer struct {
	Cuts    [][]float64 `json:"cuts"`
	MaxBins int         `json:"max_bins"`

	width IntWidth
}

//FitQuantile fits cut points per column from a dense sample of the
//feature space.
func FitQuantile(features *mat.Dense, maxBins int) (*QuantileDiscretizer, error) {
	if maxBins < 2 {
		return nil, errors.Errorf("max_bins must be at least 2, got %d", maxBins)
	}
	h, w := features.Dims()
	// Categorical encodings may need extra codes on top of the numeric
	// bins, hence the doubled bound.
	width, err := WidthFor(2*int64(maxBins) - 1)
	if err != nil {
		return nil, errors.Wrap(err, "bin id space")
	}
	disc := &QuantileDiscretizer{Cuts: make([][]float64, w), MaxBins: maxBins, width: width}
	column := make([]float64, h)
	for c := 0; c < w; c++ {
		mat.Col(column, c, features)
		sorted := append([]float64(nil), column...)
		sort.Float64s(sorted)
		cuts := make([]float64, 0, maxBins-1)
		for q := 1; q < maxBins; q++ {
			cut := sorted[q*h/maxBins]
			if len(cuts) == 0 || cut > cuts[len(cuts)-1] {
				cuts = append(cuts, cut)
			}
		}
		disc.Cuts[c] = cuts
	}
	return disc, nil
}

//NumCols returns the number of feature columns the discretizer was
//fitted on.
func (disc *QuantileDiscretizer) NumCols() int {
	return len(disc.Cuts)
}

//NumBins returns the bin id space bound per column.
func (disc *QuantileDiscretizer) NumBins() int {
	return disc.MaxBins
}

//Transform bins one raw feature row.
func (disc *QuantileDiscretizer) Transform(row []float64) BinVector {
	if disc.width == 0 {
		// Reloaded from JSON; the width tag is derived state.
		width, err := WidthFor(2*int64(disc.MaxBins) - 1)
		HandleError(err)
		disc.width = width
	}
	bins := NewBinVector(disc.width, len(disc.Cuts))
	for c, v := range row {
		bins.Set(c, sort.SearchFloat64s(disc.Cuts[c], v))
	}
	return bins
}
