package gbm

import (
	"encoding/json"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFitQuantileBinsUniformColumn(t *testing.T) {
	h := 100
	data := make([]float64, h)
	for i := range data {
		data[i] = float64(i)
	}
	features := mat.NewDense(h, 1, data)
	disc, err := FitQuantile(features, 4)
	if err != nil {
		t.Fatal(err)
	}
	if disc.NumCols() != 1 || disc.NumBins() != 4 {
		t.Fatalf("got %d cols and %d bins", disc.NumCols(), disc.NumBins())
	}
	if len(disc.Cuts[0]) != 3 {
		t.Fatalf("got %d cuts, want 3", len(disc.Cuts[0]))
	}

	counts := make([]int, 4)
	for i := range data {
		bins := disc.Transform([]float64{data[i]})
		counts[bins.At(0)]++
	}
	// Boundary values land in the lower bin, so the quarters are near
	// equal rather than exact.
	for bin, count := range counts {
		if count < 20 || count > 30 {
			t.Fatalf("bin %d holds %d values, want about 25", bin, count)
		}
	}
}

func TestFitQuantileDeduplicatesConstantColumn(t *testing.T) {
	data := make([]float64, 50)
	features := mat.NewDense(50, 1, data)
	disc, err := FitQuantile(features, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(disc.Cuts[0]) > 1 {
		t.Fatalf("constant column got %d cuts", len(disc.Cuts[0]))
	}
}

func TestFitQuantileRejectsDegenerateBins(t *testing.T) {
	features := mat.NewDense(2, 1, []float64{1, 2})
	if _, err := FitQuantile(features, 1); err == nil {
		t.Fatal("expected an error for max_bins 1")
	}
}

func TestDiscretizerSurvivesJSONRoundTrip(t *testing.T) {
	features := mat.NewDense(6, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
		5, 50,
		6, 60,
	})
	disc, err := FitQuantile(features, 3)
	if err != nil {
		t.Fatal(err)
	}

	repr, err := json.Marshal(disc)
	if err != nil {
		t.Fatal(err)
	}
	var loaded QuantileDiscretizer
	if err := json.Unmarshal(repr, &loaded); err != nil {
		t.Fatal(err)
	}

	rows := [][]float64{{0.5, 15}, {3.5, 35}, {100, -100}}
	for _, row := range rows {
		want := disc.Transform(row)
		got := loaded.Transform(row)
		for c := 0; c < want.Len(); c++ {
			if want.At(c) != got.At(c) {
				t.Fatalf("row %v col %d: %d vs %d after reload", row, c, want.At(c), got.At(c))
			}
		}
	}
}

func TestDatasetFromMatrixOneHotExpansion(t *testing.T) {
	features := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	disc, err := FitQuantile(features, 3)
	if err != nil {
		t.Fatal(err)
	}
	labels := mat.NewDense(6, 1, []float64{0, 1, 2, 0, 1, 2})

	ds, err := DatasetFromMatrix(features, labels, nil, disc, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < ds.Len(); i++ {
		label := ds.Instances[i].Label
		class := int(labels.At(i, 0))
		for k := range label {
			want := 0.0
			if k == class {
				want = 1
			}
			if label[k] != want {
				t.Fatalf("instance %d label %v, class %d", i, label, class)
			}
		}
		if ds.Instances[i].Weight != 1 {
			t.Fatalf("instance %d weight %g, want unit", i, ds.Instances[i].Weight)
		}
	}

	bad := mat.NewDense(6, 1, []float64{0, 1, 2, 0, 1, 7})
	if _, err := DatasetFromMatrix(features, bad, nil, disc, 2, 3); err == nil {
		t.Fatal("expected an error for a class outside the range")
	}
}

func TestDatasetFromMatrixValidatesShapes(t *testing.T) {
	features := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	disc, err := FitQuantile(features, 2)
	if err != nil {
		t.Fatal(err)
	}
	labels := mat.NewDense(3, 1, []float64{0, 1, 0})
	if _, err := DatasetFromMatrix(features, labels, nil, disc, 1, 1); err == nil {
		t.Fatal("expected an error for a label height mismatch")
	}
	labels = mat.NewDense(4, 2, make([]float64, 8))
	if _, err := DatasetFromMatrix(features, labels, nil, disc, 1, 1); err == nil {
		t.Fatal("expected an error for a label width mismatch")
	}
	labels = mat.NewDense(4, 1, make([]float64, 4))
	if _, err := DatasetFromMatrix(features, labels, []float64{1, 1}, disc, 1, 1); err == nil {
		t.Fatal("expected an error for a weights length mismatch")
	}
}
