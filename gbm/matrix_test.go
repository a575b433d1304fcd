package gbm

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNpyRoundTrip(t *testing.T) {
	src := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	filename := filepath.Join(t.TempDir(), "m.npy")
	if err := WriteNpy(filename, src); err != nil {
		t.Fatal(err)
	}
	loaded, err := ReadNpy(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(src, loaded) {
		t.Fatalf("reloaded matrix differs:\n%v", mat.Formatted(loaded))
	}
}

func TestReadNpyMissingFile(t *testing.T) {
	if _, err := ReadNpy(filepath.Join(t.TempDir(), "nosuch.npy")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
