package gbm

import (
	"gorgonia.org/tensor"

	"github.com/pkg/errors"
)

//TreeModel is the opaque tree artifact the driver consumes: a single
//predict capability over a discretized row. An empty tree is a builder
//that found no valid split anywhere.
type TreeModel interface {
	Predict(bins BinVector) float64
	IsEmpty() bool
}

//TreeBuilder is the collaborator that grows one round's trees from the
//sampler output. Returned trees may be empty; the driver treats a round
//of only empty trees as normal termination.
type TreeBuilder interface {
	Train(ds *Dataset, batch *GradientBatch, cfg *BoostConfig, base *BaseConfig) ([]TreeModel, error)
}

//TreeNode is a node of a flat tree array. Children of a split node are
//array indices; a leaf carries the raw prediction value.
type TreeNode struct {
	Col             int     `json:"col"`
	Bin             int     `json:"bin"`
	LeftIndex       int     `json:"left_index"`
	RightIndex      int     `json:"right_index"`
	IsLeaf          bool    `json:"is_leaf"`
	Value           float64 `json:"value"`
	Gain            float64 `json:"gain"`
	NumberOfObjects int     `json:"number_of_objects"`
}

//Tree is one decision tree over binned features. The zero tree is the
//empty tree.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

//Predict walks the tree on one bin row. The split convention is
//"bin <= threshold goes left". The empty tree predicts zero.
func (tree *Tree) Predict(bins BinVector) float64 {
	if len(tree.Nodes) == 0 {
		return 0
	}
	ind := 0
	for !tree.Nodes[ind].IsLeaf {
		node := &tree.Nodes[ind]
		if bins.At(node.Col) <= node.Bin {
			ind = node.LeftIndex
		} else {
			ind = node.RightIndex
		}
	}
	return tree.Nodes[ind].Value
}

//IsEmpty reports whether the builder produced no split for this tree.
func (tree *Tree) IsEmpty() bool {
	return len(tree.Nodes) == 0
}

//HistBuilder grows trees depth-wise from per-node gradient and hessian
//histograms over the binned columns. It is the in-process implementation
//of the TreeBuilder collaborator.
type HistBuilder struct {
	Threads int
}

//nodeStat is the accumulated (gradient, hessian) mass of one frontier
//node.
type nodeStat struct {
	sumG, sumH float64
	count      int
}

//splitCand is one candidate split of a frontier node: the column, the
//highest bin going left and the left-side mass.
type splitCand struct {
	valid    bool
	gain     float64
	col, bin int
	leftG    float64
	leftH    float64
}

//taskScanColumn scans one column's histograms for every frontier node.
type taskScanColumn struct {
	results [][]splitCand
	col     int
	scan    func(col int) []splitCand
}

func (task *taskScanColumn) Run() {
	task.results[task.col] = task.scan(task.col)
}

//Train grows one tree per (base model, output) slot of the round.
func (hb *HistBuilder) Train(ds *Dataset, batch *GradientBatch, cfg *BoostConfig, base *BaseConfig) ([]TreeModel, error) {
	if err := hb.checkIDSpaces(ds, cfg, base); err != nil {
		return nil, err
	}
	trees := make([]TreeModel, base.NumTrees)
	for t := 0; t < base.NumTrees; t++ {
		trees[t] = hb.buildTree(ds, batch, cfg, base, t)
	}
	return trees, nil
}

//checkIDSpaces applies the compact width selection to every id space of
//the round. Overflow of the widest supported type is a configuration
//error, reported before any tree is grown.
func (hb *HistBuilder) checkIDSpaces(ds *Dataset, cfg *BoostConfig, base *BaseConfig) error {
	if _, err := WidthFor(int64(ds.NumCols)); err != nil {
		return errors.Wrap(err, "column id space")
	}
	if _, err := WidthFor(2*int64(ds.NumBins) - 1); err != nil {
		return errors.Wrap(err, "bin id space")
	}
	if _, err := WidthFor(int64(base.NumTrees)); err != nil {
		return errors.Wrap(err, "tree id space")
	}
	if _, err := WidthFor(int64(1) << uint(cfg.MaxDepth)); err != nil {
		return errors.Wrap(err, "node id space")
	}
	return nil
}

func (hb *HistBuilder) buildTree(ds *Dataset, batch *GradientBatch, cfg *BoostConfig, base *BaseConfig, t int) *Tree {
	rawSize := batch.RawSize
	m, k := t/rawSize, t%rawSize
	selector := base.Selector(t)
	numBins := ds.NumBins
	lambda := cfg.RegLambda

	rows := make([]int, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		if batch.Grad[i] != nil && batch.Participates(i, m) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return &Tree{}
	}

	tree := &Tree{}
	root := nodeStat{count: len(rows)}
	for _, i := range rows {
		root.sumG += batch.Grad[i][k]
		root.sumH += batch.Grad[i][rawSize+k]
	}
	tree.Nodes = append(tree.Nodes, TreeNode{LeftIndex: -1, RightIndex: -1, NumberOfObjects: root.count})

	rowNode := make([]int, len(rows))
	active := []int{0}
	stats := map[int]nodeStat{0: root}

	for depth := 0; depth < cfg.MaxDepth && len(active) > 0; depth++ {
		local := make(map[int]int, len(active))
		for j, n := range active {
			local[n] = j
		}

		// Histogram cubes over (frontier node, column, bin); the flat
		// layout is (slot*numCols + col)*numBins + bin.
		gcube := tensor.New(tensor.WithShape(len(active), ds.NumCols, numBins), tensor.Of(tensor.Float64))
		hcube := tensor.New(tensor.WithShape(len(active), ds.NumCols, numBins), tensor.Of(tensor.Float64))
		gdata := gcube.Data().([]float64)
		hdata := hcube.Data().([]float64)
		for r, i := range rows {
			j, ok := local[rowNode[r]]
			if !ok {
				continue
			}
			g := batch.Grad[i][k]
			h := batch.Grad[i][rawSize+k]
			bins := ds.Instances[i].Bins
			rowBase := j * ds.NumCols * numBins
			for col := 0; col < ds.NumCols; col++ {
				off := rowBase + col*numBins + bins.At(col)
				gdata[off] += g
				hdata[off] += h
			}
		}

		scan := func(col int) []splitCand {
			if !selector.Contains(col) {
				return nil
			}
			cands := make([]splitCand, len(active))
			for j, n := range active {
				total := stats[n]
				off := (j*ds.NumCols + col) * numBins
				var gl, hl float64
				for bin := 0; bin < numBins-1; bin++ {
					gl += gdata[off+bin]
					hl += hdata[off+bin]
					gr := total.sumG - gl
					hr := total.sumH - hl
					if hl <= 0 || hr <= 0 {
						continue
					}
					gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - total.sumG*total.sumG/(total.sumH+lambda)
					if gain > cfg.MinGain && (!cands[j].valid || gain > cands[j].gain) {
						cands[j] = splitCand{valid: true, gain: gain, col: col, bin: bin, leftG: gl, leftH: hl}
					}
				}
			}
			return cands
		}

		results := make([][]splitCand, ds.NumCols)
		if hb.Threads <= 1 {
			for col := 0; col < ds.NumCols; col++ {
				results[col] = scan(col)
			}
		} else {
			pool := NewPool(hb.Threads)
			for col := 0; col < ds.NumCols; col++ {
				pool.AddTask(&taskScanColumn{results: results, col: col, scan: scan})
			}
			pool.Close()
			pool.WaitAll()
		}

		best := make([]splitCand, len(active))
		for _, cands := range results {
			if cands == nil {
				continue
			}
			for j := range cands {
				if cands[j].valid && (!best[j].valid || cands[j].gain > best[j].gain) {
					best[j] = cands[j]
				}
			}
		}

		next := make([]int, 0, 2*len(active))
		nextStats := make(map[int]nodeStat, 2*len(active))
		split := make(map[int]bool, len(active))
		for j, n := range active {
			if !best[j].valid {
				hb.toLeaf(tree, n, stats[n], lambda)
				continue
			}
			total := stats[n]
			left := len(tree.Nodes)
			right := left + 1
			node := &tree.Nodes[n]
			node.Col = best[j].col
			node.Bin = best[j].bin
			node.LeftIndex = left
			node.RightIndex = right
			node.Gain = best[j].gain
			leftStat := nodeStat{sumG: best[j].leftG, sumH: best[j].leftH}
			rightStat := nodeStat{sumG: total.sumG - leftStat.sumG, sumH: total.sumH - leftStat.sumH}
			tree.Nodes = append(tree.Nodes,
				TreeNode{LeftIndex: -1, RightIndex: -1},
				TreeNode{LeftIndex: -1, RightIndex: -1})
			next = append(next, left, right)
			nextStats[left] = leftStat
			nextStats[right] = rightStat
			split[n] = true
		}
		if len(tree.Nodes) == 1 {
			// No split anywhere at the root: an empty tree, the
			// driver's no-progress signal.
			return &Tree{}
		}

		for r, i := range rows {
			n := rowNode[r]
			if !split[n] {
				if _, ok := local[n]; ok {
					rowNode[r] = -1
				}
				continue
			}
			node := &tree.Nodes[n]
			bins := ds.Instances[i].Bins
			child := node.RightIndex
			if bins.At(node.Col) <= node.Bin {
				child = node.LeftIndex
			}
			rowNode[r] = child
			stat := nextStats[child]
			stat.count++
			nextStats[child] = stat
		}
		for n, stat := range nextStats {
			tree.Nodes[n].NumberOfObjects = stat.count
		}
		active = next
		stats = nextStats
	}

	for _, n := range active {
		hb.toLeaf(tree, n, stats[n], lambda)
	}
	return tree
}

//toLeaf closes a frontier node with the regularized newton step value.
func (hb *HistBuilder) toLeaf(tree *Tree, n int, stat nodeStat, lambda float64) {
	node := &tree.Nodes[n]
	node.IsLeaf = true
	node.Value = -stat.sumG / (stat.sumH + lambda)
}
