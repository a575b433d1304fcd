package gbm

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/pkg/errors"
)

//Model is the persisted training output: the objective identity, the
//transformed base score and the parallel tree/weight arrays, plus the
//fitted discretizer when the caller trained through one.
type Model struct {
	ObjectiveName string               `json:"objective"`
	BoostType     string               `json:"boost_type"`
	NumClasses    int                  `json:"num_classes,omitempty"`
	RawBase       []float64            `json:"raw_base"`
	Trees         []*Tree              `json:"trees"`
	Weights       []float64            `json:"weights"`
	Discretizer   *QuantileDiscretizer `json:"discretizer,omitempty"`
	TrainHistory  []map[string]float64 `json:"train_history,omitempty"`
	ValidHistory  []map[string]float64 `json:"valid_history,omitempty"`

	objective Objective
}

//Objective resolves the model's objective from its persisted name.
func (m *Model) Objective() (Objective, error) {
	if m.objective == nil {
		obj, err := ObjectiveByName(m.ObjectiveName, m.NumClasses)
		if err != nil {
			return nil, err
		}
		m.objective = obj
	}
	return m.objective, nil
}

//RawSize returns the number of raw outputs per instance.
func (m *Model) RawSize() int {
	return len(m.RawBase)
}

//PredictRaw folds a prefix of the ensemble over one bin row. upTo limits
//the number of trees applied; pass len(m.Trees) (or anything larger) for
//the full model. The prefix is rounded down to a whole base-model block
//so a multiclass model never scores with a partial round.
func (m *Model) PredictRaw(bins BinVector, upTo int, out []float64) {
	copy(out, m.RawBase)
	if upTo > len(m.Trees) {
		upTo = len(m.Trees)
	}
	rawSize := m.RawSize()
	upTo -= upTo % rawSize
	for t := 0; t < upTo; t++ {
		out[t%rawSize] += m.Trees[t].Predict(bins) * m.Weights[t]
	}
}

//Predict returns the transformed score of one bin row.
func (m *Model) Predict(bins BinVector) ([]float64, error) {
	obj, err := m.Objective()
	if err != nil {
		return nil, err
	}
	raw := make([]float64, m.RawSize())
	score := make([]float64, m.RawSize())
	m.PredictRaw(bins, len(m.Trees), raw)
	obj.Transform(raw, score)
	return score, nil
}

//ensemble adapts the persisted trees back into driver state, for the
//cold-start raw recompute.
func (m *Model) ensemble() *Ensemble {
	ens := &Ensemble{Weights: m.Weights}
	for _, tree := range m.Trees {
		ens.Trees = append(ens.Trees, tree)
	}
	return ens
}

//Evaluate scores the model on a dataset with the named metrics. This is
//the evaluation-only cold start: raw scores are recomputed from scratch
//before the aggregator pass.
func (m *Model) Evaluate(ds *Dataset, metrics []string, threads, aggregationDepth int) (map[string]float64, error) {
	obj, err := m.Objective()
	if err != nil {
		return nil, err
	}
	if ds.Raw == nil {
		ds.Raw = make([][]float64, ds.Len())
	}
	dart := m.BoostType == BoostDart
	if err := recomputeRaw(ds, m.ensemble(), m.RawBase, obj.RawSize(), dart, threads); err != nil {
		return nil, err
	}
	cfg := &BoostConfig{
		Objective:        obj,
		EvalMetrics:      metrics,
		Threads:          threads,
		AggregationDepth: aggregationDepth,
	}
	if cfg.AggregationDepth == 0 {
		cfg.AggregationDepth = 2
	}
	return evaluate(ds, cfg)
}

//Save writes the model as indented JSON.
func (m *Model) Save(filename string) error {
	repr, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}
	if err := os.WriteFile(filename, repr, 0o644); err != nil {
		return errors.Wrapf(err, "write model to %s", filename)
	}
	return nil
}

//LoadModel reads a model saved by Save.
func LoadModel(filename string) (*Model, error) {
	source, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", filename)
	}
	defer func() { HandleError(source.Close()) }()

	var m Model
	if err := json.NewDecoder(source).Decode(&m); err != nil {
		return nil, errors.Wrapf(err, "decode model %s", filename)
	}
	if _, err := m.Objective(); err != nil {
		return nil, err
	}
	return &m, nil
}

//LearningCurvesDump is the on-disk shape of the metric history.
type LearningCurvesDump struct {
	Train []map[string]float64 `json:"train"`
	Valid []map[string]float64 `json:"valid"`
}

//DumpLearningCurves writes the per-round metric history as JSON.
func (m *Model) DumpLearningCurves(filename string) error {
	dump := LearningCurvesDump{Train: m.TrainHistory, Valid: m.ValidHistory}
	repr, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal learning curves")
	}
	return errors.Wrapf(os.WriteFile(filename, repr, 0o644), "write %s", filename)
}

//HandleError panics on a non-nil error. Only the rendering helpers use
//it, for conditions that cannot occur with well-formed trees.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}

//GraphDescription returns the label of a split node for rendering.
func (node TreeNode) GraphDescription() string {
	if node.IsLeaf {
		return fmt.Sprintf("# %d\nvalue: %6.4f", node.NumberOfObjects, node.Value)
	}
	return fmt.Sprintf("# %d\ngain: %6.4f\nbin_%d <= %d", node.NumberOfObjects, node.Gain, node.Col, node.Bin)
}

func recurrentDraw(g *cgraph.Graph, tree *Tree, nodeNumber int, parentNode *cgraph.Node) {
	currentNode, err := g.CreateNode(fmt.Sprint(nodeNumber))
	HandleError(err)
	currentNode.Set("label", tree.Nodes[nodeNumber].GraphDescription())

	if parentNode != nil {
		_, err = g.CreateEdge("", parentNode, currentNode)
		HandleError(err)
	}

	if tree.Nodes[nodeNumber].IsLeaf {
		currentNode.Set("shape", "box")
	} else {
		recurrentDraw(g, tree, tree.Nodes[nodeNumber].LeftIndex, currentNode)
		recurrentDraw(g, tree, tree.Nodes[nodeNumber].RightIndex, currentNode)
	}
}

//DrawGraph builds a graphviz graph of one tree.
func (tree *Tree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	HandleError(err)

	if !tree.IsEmpty() {
		recurrentDraw(graph, tree, 0, nil)
	}
	return graphViz, graph
}

//RenderTrees renders every tree of the model into the given directory.
func (m *Model) RenderTrees(dumpPrefix, figureType, picturesDirectory string) error {
	graphvizType, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]
	if !ok {
		return errors.Errorf("unknown figure type %q", figureType)
	}

	for graphInd, currentTree := range m.Trees {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		graphViz, graph := currentTree.DrawGraph()
		if err := graphViz.RenderFilename(graph, graphvizType, path.Join(picturesDirectory, filename)); err != nil {
			return errors.Wrapf(err, "render tree %d", graphInd)
		}
	}
	return nil
}
