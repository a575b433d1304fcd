package gbm

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//ReadNpy reads the content of an npy file into a dense matrix.
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer func() { HandleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy header of %s", fileName)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, errors.Wrapf(err, "read npy body of %s", fileName)
	}
	return denseMat, nil
}

//WriteNpy writes a dense matrix as an npy file.
func WriteNpy(fileName string, m *mat.Dense) error {
	dst, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "create %s", fileName)
	}
	defer func() { HandleError(dst.Close()) }()
	return errors.Wrapf(npyio.Write(dst, m), "write npy %s", fileName)
}

//DatasetFromMatrix discretizes a dense feature matrix into a dataset.
//labels is either one column per raw output, or a single class index
//column that gets one-hot expanded when rawSize > 1. A nil weights
//vector means unit weights.
func DatasetFromMatrix(features, labels *mat.Dense, weights []float64, disc Discretizer, numPartitions, rawSize int) (*Dataset, error) {
	h, w := features.Dims()
	labelH, labelW := labels.Dims()
	if labelH != h {
		return nil, errors.Errorf("labels height %d does not match features height %d", labelH, h)
	}
	if w != disc.NumCols() {
		return nil, errors.Errorf("features width %d does not match discretizer columns %d", w, disc.NumCols())
	}
	if labelW != rawSize && !(labelW == 1 && rawSize > 1) {
		return nil, errors.Errorf("labels width %d fits neither rawSize %d nor a class index column", labelW, rawSize)
	}
	if weights != nil && len(weights) != h {
		return nil, errors.Errorf("weights length %d does not match features height %d", len(weights), h)
	}

	instances := make([]Instance, h)
	row := make([]float64, w)
	for i := 0; i < h; i++ {
		mat.Row(row, i, features)
		label := make([]float64, rawSize)
		if labelW == rawSize {
			for k := 0; k < rawSize; k++ {
				label[k] = labels.At(i, k)
			}
		} else {
			class := int(labels.At(i, 0))
			if class < 0 || class >= rawSize {
				return nil, errors.Errorf("instance %d has class %d outside [0, %d)", i, class, rawSize)
			}
			label[class] = 1
		}
		weight := 1.0
		if weights != nil {
			weight = weights[i]
		}
		instances[i] = Instance{Weight: weight, Label: label, Bins: disc.Transform(row)}
	}
	return NewDataset(instances, disc.NumCols(), disc.NumBins(), numPartitions, rawSize)
}
