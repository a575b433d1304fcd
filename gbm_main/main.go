package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"runtime"
	"runtime/pprof"

	"gonum.org/v1/gonum/mat"

	"github.com/sjtuxiaoming/SparkGBM/gbm"
)

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	gbm.HandleError(err)
	defer func() { gbm.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	gbm.HandleError(decoder.Decode(out))
}

//readWeights loads an optional h-by-1 weight matrix into a vector.
func readWeights(fileName string, h int) []float64 {
	if fileName == "" {
		return nil
	}
	m, err := gbm.ReadNpy(fileName)
	gbm.HandleError(err)
	mh, _ := m.Dims()
	if mh != h {
		log.Panicf("weights height %d does not match features height %d", mh, h)
	}
	weights := make([]float64, h)
	for i := 0; i < h; i++ {
		weights[i] = m.At(i, 0)
	}
	return weights
}

type TrainConfig struct {
	FileNameTrainFeatures string `json:"filename_train_features"`
	FileNameTrainLabels   string `json:"filename_train_labels"`
	FileNameTrainWeights  string `json:"filename_train_weights,omitempty"`
	FileNameValidFeatures string `json:"filename_valid_features,omitempty"`
	FileNameValidLabels   string `json:"filename_valid_labels,omitempty"`
	FileNameValidWeights  string `json:"filename_valid_weights,omitempty"`

	FileNameModel          string `json:"filename_model"`
	FileNameLearningCurves string `json:"filename_learning_curves,omitempty"`

	Objective     string `json:"objective"`
	NumClasses    int    `json:"num_classes,omitempty"`
	MaxBins       int    `json:"max_bins"`
	NumPartitions int    `json:"num_partitions"`

	Boost gbm.BoostConfig `json:"boost"`
}

func train(srcConfig string) {
	var trainConfig TrainConfig
	decodeConfig(srcConfig, &trainConfig)

	objective, err := gbm.ObjectiveByName(trainConfig.Objective, trainConfig.NumClasses)
	gbm.HandleError(err)
	trainConfig.Boost.Objective = objective
	rawSize := objective.RawSize()

	log.Print("load train features <", trainConfig.FileNameTrainFeatures, ">")
	features, err := gbm.ReadNpy(trainConfig.FileNameTrainFeatures)
	gbm.HandleError(err)
	labels, err := gbm.ReadNpy(trainConfig.FileNameTrainLabels)
	gbm.HandleError(err)

	maxBins := trainConfig.MaxBins
	if maxBins == 0 {
		maxBins = 64
	}
	disc, err := gbm.FitQuantile(features, maxBins)
	gbm.HandleError(err)

	h, _ := features.Dims()
	trainSet, err := gbm.DatasetFromMatrix(features, labels, readWeights(trainConfig.FileNameTrainWeights, h),
		disc, trainConfig.NumPartitions, rawSize)
	gbm.HandleError(err)

	var validSet *gbm.Dataset
	if trainConfig.FileNameValidFeatures != "" {
		log.Print("load valid features <", trainConfig.FileNameValidFeatures, ">")
		validFeatures, err := gbm.ReadNpy(trainConfig.FileNameValidFeatures)
		gbm.HandleError(err)
		validLabels, err := gbm.ReadNpy(trainConfig.FileNameValidLabels)
		gbm.HandleError(err)
		vh, _ := validFeatures.Dims()
		validSet, err = gbm.DatasetFromMatrix(validFeatures, validLabels,
			readWeights(trainConfig.FileNameValidWeights, vh), disc, trainConfig.NumPartitions, rawSize)
		gbm.HandleError(err)
	}

	builder := &gbm.HistBuilder{Threads: trainConfig.Boost.Threads}
	model, err := gbm.TrainBoost(trainSet, validSet, &trainConfig.Boost, builder)
	gbm.HandleError(err)
	model.Discretizer = disc

	gbm.HandleError(model.Save(trainConfig.FileNameModel))
	if trainConfig.FileNameLearningCurves != "" {
		gbm.HandleError(model.DumpLearningCurves(trainConfig.FileNameLearningCurves))
	}
}

type PredictConfig struct {
	FileNameFeatures   string `json:"filename_features"`
	FileNameModel      string `json:"filename_model"`
	FileNamePrediction string `json:"filename_prediction"`
	TreesNumber        int    `json:"trees_number,omitempty"`
}

func predict(srcConfig string) {
	var predictConfig PredictConfig
	decodeConfig(srcConfig, &predictConfig)

	model, err := gbm.LoadModel(predictConfig.FileNameModel)
	gbm.HandleError(err)
	if model.Discretizer == nil {
		log.Panic("model carries no discretizer, cannot predict from raw features")
	}
	objective, err := model.Objective()
	gbm.HandleError(err)

	features, err := gbm.ReadNpy(predictConfig.FileNameFeatures)
	gbm.HandleError(err)
	h, w := features.Dims()

	upTo := len(model.Trees)
	if predictConfig.TreesNumber != 0 {
		upTo = predictConfig.TreesNumber
	}

	rawSize := model.RawSize()
	prediction := mat.NewDense(h, rawSize, nil)
	row := make([]float64, w)
	raw := make([]float64, rawSize)
	score := make([]float64, rawSize)
	for i := 0; i < h; i++ {
		mat.Row(row, i, features)
		model.PredictRaw(model.Discretizer.Transform(row), upTo, raw)
		objective.Transform(raw, score)
		prediction.SetRow(i, score)
	}
	gbm.HandleError(gbm.WriteNpy(predictConfig.FileNamePrediction, prediction))
}

type LcurveConfig struct {
	FileNameFeatures      string `json:"filename_features"`
	FileNameLabels        string `json:"filename_labels"`
	FileNameModel         string `json:"filename_model"`
	FileNameLearningCurve string `json:"filename_learning_curve"`
	Metric                string `json:"metric"`
}

//lcurve replays the ensemble tree by tree and reports the configured
//metric after each prefix, the cheap way: raw scores accumulate
//incrementally instead of being refolded per prefix.
func lcurve(srcConfig string) {
	var lcurveConfig LcurveConfig
	decodeConfig(srcConfig, &lcurveConfig)

	model, err := gbm.LoadModel(lcurveConfig.FileNameModel)
	gbm.HandleError(err)
	if model.Discretizer == nil {
		log.Panic("model carries no discretizer, cannot score raw features")
	}
	objective, err := model.Objective()
	gbm.HandleError(err)
	metric := lcurveConfig.Metric
	if metric == "" {
		metric = "rmse"
	}

	features, err := gbm.ReadNpy(lcurveConfig.FileNameFeatures)
	gbm.HandleError(err)
	labels, err := gbm.ReadNpy(lcurveConfig.FileNameLabels)
	gbm.HandleError(err)

	h, w := features.Dims()
	rawSize := model.RawSize()
	if _, lw := labels.Dims(); lw != rawSize {
		log.Panicf("labels width %d does not match rawSize %d", lw, rawSize)
	}
	row := make([]float64, w)
	bins := make([]gbm.BinVector, h)
	raws := make([][]float64, h)
	for i := 0; i < h; i++ {
		mat.Row(row, i, features)
		bins[i] = model.Discretizer.Transform(row)
		raws[i] = append([]float64(nil), model.RawBase...)
	}

	learningCurve := mat.NewDense(len(model.Trees), 1, nil)
	label := make([]float64, rawSize)
	score := make([]float64, rawSize)
	for t, tree := range model.Trees {
		agg, err := gbm.NewAggregator(metric, rawSize)
		gbm.HandleError(err)
		for i := 0; i < h; i++ {
			raws[i][t%rawSize] += tree.Predict(bins[i]) * model.Weights[t]
			objective.Transform(raws[i], score)
			for k := 0; k < rawSize; k++ {
				label[k] = labels.At(i, k)
			}
			agg.Add(1, label, score)
		}
		learningCurve.Set(t, 0, agg.Value())
	}
	gbm.HandleError(gbm.WriteNpy(lcurveConfig.FileNameLearningCurve, learningCurve))
}

type GraphConfig struct {
	FileNameModel     string `json:"filename_model"`
	FigureType        string `json:"figure_type"`
	PicturesDirectory string `json:"pictures_directory"`
	DumpPrefix        string `json:"dump_prefix"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	model, err := gbm.LoadModel(graphConfig.FileNameModel)
	gbm.HandleError(err)
	gbm.HandleError(model.RenderTrees(graphConfig.DumpPrefix, graphConfig.FigureType, graphConfig.PicturesDirectory))
}

func main() {
	runMode := flag.String("mode", "train", "you can select either 'train', 'predict', 'lcurve' or 'graph' modes")
	config := flag.String("config", "gbm_config.json", "a config file for the run of the program")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")

	flag.Parse()

	map[string]func(string){
		"train":   train,
		"predict": predict,
		"lcurve":  lcurve,
		"graph":   graph,
	}[*runMode](*config)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		gbm.HandleError(err)
		defer func() { gbm.HandleError(f.Close()) }()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
