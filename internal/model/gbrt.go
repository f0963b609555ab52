package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Params configures gradient-boosted regression tree fitting.
type Params struct {
	Trees        int     `json:"trees"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	MinLeaf      int     `json:"min_leaf"`
	Subsample    float64 `json:"subsample"`
	Bins         int     `json:"bins"`
	Seed         int64   `json:"seed"`
}

// DefaultParams returns the fitting defaults used by the trainer.
func DefaultParams() Params {
	return Params{
		Trees:        150,
		MaxDepth:     4,
		LearningRate: 0.1,
		MinLeaf:      5,
		Subsample:    0.8,
		Bins:         32,
		Seed:         42,
	}
}

func (p Params) validate() error {
	switch {
	case p.Trees < 0:
		return errors.New("trees must be >= 0")
	case p.MaxDepth < 1:
		return errors.New("max depth must be >= 1")
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return errors.New("learning rate must be in (0,1]")
	case p.MinLeaf < 1:
		return errors.New("min leaf must be >= 1")
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.New("subsample must be in (0,1]")
	case p.Bins < 2 || p.Bins > 255:
		return errors.New("bins must be in [2,255]")
	}
	return nil
}

// Node is one entry of a tree's flat node array. Leaf nodes carry Value;
// split nodes send x[Feature] <= Threshold to Left and the rest to Right.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a regression tree stored as a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBRT is a fitted gradient-boosted regression tree ensemble (squared loss).
type GBRT struct {
	NumFeatures  int     `json:"num_features"`
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []Tree  `json:"trees"`
}

// Predict evaluates the ensemble. x must have NumFeatures entries.
func (m *GBRT) Predict(x []float64) float64 {
	out := m.Base
	for _, t := range m.Trees {
		out += m.LearningRate * t.predict(x)
	}
	return out
}

// Fit trains an ensemble on rows X with targets y. Feature values are
// bucketed into at most p.Bins quantile bins; split thresholds are bin edges.
func Fit(X [][]float64, y []float64, p Params) (*GBRT, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("need matching non-empty X and y, got %d rows and %d targets", len(X), len(y))
	}
	nf := len(X[0])
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nf)
		}
	}

	n := len(X)
	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	m := &GBRT{NumFeatures: nf, Base: base, LearningRate: p.LearningRate}

	edges := make([][]float64, nf)
	binned := make([][]uint8, nf)
	for f := 0; f < nf; f++ {
		col := make([]float64, n)
		for i := range X {
			col[i] = X[i][f]
		}
		edges[f] = quantileEdges(col, p.Bins)
		binned[f] = make([]uint8, n)
		for i, v := range col {
			binned[f][i] = uint8(binIndex(edges[f], v))
		}
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	resid := make([]float64, n)
	rng := rand.New(rand.NewSource(p.Seed))
	sampleSize := int(math.Max(1, math.Round(p.Subsample*float64(n))))

	b := &treeBuilder{edges: edges, binned: binned, resid: resid, params: p}
	for t := 0; t < p.Trees; t++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}

		rows := rng.Perm(n)[:sampleSize]
		tree := b.build(rows)
		for i := range X {
			pred[i] += p.LearningRate * tree.predict(X[i])
		}
		m.Trees = append(m.Trees, tree)
	}

	return m, nil
}

// quantileEdges returns ascending distinct cut points so that values <= edge[k]
// fall into bin k.
func quantileEdges(col []float64, bins int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	var edges []float64
	for k := 1; k < bins; k++ {
		v := sorted[k*(len(sorted)-1)/bins]
		if len(edges) == 0 || v > edges[len(edges)-1] {
			edges = append(edges, v)
		}
	}
	return edges
}

func binIndex(edges []float64, v float64) int {
	return sort.SearchFloat64s(edges, v)
}

type treeBuilder struct {
	edges  [][]float64
	binned [][]uint8
	resid  []float64
	params Params
	nodes  []Node
}

func (b *treeBuilder) build(rows []int) Tree {
	b.nodes = nil
	b.grow(rows, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) leafValue(rows []int) float64 {
	var sum float64
	for _, i := range rows {
		sum += b.resid[i]
	}
	return sum / float64(len(rows))
}

// grow appends the subtree for rows and returns its node index.
func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	if depth >= b.params.MaxDepth || len(rows) < 2*b.params.MinLeaf {
		b.nodes[idx] = Node{Leaf: true, Value: b.leafValue(rows)}
		return idx
	}

	feature, bin, ok := b.bestSplit(rows)
	if !ok {
		b.nodes[idx] = Node{Leaf: true, Value: b.leafValue(rows)}
		return idx
	}

	var left, right []int
	for _, i := range rows {
		if int(b.binned[feature][i]) <= bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{
		Feature:   feature,
		Threshold: b.edges[feature][bin],
		Left:      l,
		Right:     r,
	}
	return idx
}

// bestSplit scans per-feature histograms for the split with the largest
// reduction in squared error that respects MinLeaf.
func (b *treeBuilder) bestSplit(rows []int) (int, int, bool) {
	var total float64
	for _, i := range rows {
		total += b.resid[i]
	}
	n := float64(len(rows))
	parent := total * total / n

	bestGain := 1e-12
	bestFeature, bestBin := -1, -1

	for f := range b.binned {
		nb := len(b.edges[f]) + 1
		if nb < 2 {
			continue
		}
		sums := make([]float64, nb)
		counts := make([]int, nb)
		for _, i := range rows {
			k := b.binned[f][i]
			sums[k] += b.resid[i]
			counts[k]++
		}

		var leftSum float64
		var leftCount int
		// the last bin has no edge to split on
		for k := 0; k < nb-1; k++ {
			leftSum += sums[k]
			leftCount += counts[k]
			rightCount := len(rows) - leftCount
			if leftCount < b.params.MinLeaf {
				continue
			}
			if rightCount < b.params.MinLeaf {
				break
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(leftCount) + rightSum*rightSum/float64(rightCount) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature, bestBin = f, k
			}
		}
	}

	return bestFeature, bestBin, bestFeature >= 0
}
