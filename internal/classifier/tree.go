package classifier

import (
	"fmt"
	"math/rand"
	"sort"
)

const leafNode = -1

// Tree is a fitted binary decision tree stored as parallel node arrays.
// Node 0 is the root; a Feature of -1 marks a leaf.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`

	// importance is the impurity decrease per feature, only kept while fitting.
	importance []float64
}

// Predict walks x to a leaf and returns its value.
func (t *Tree) Predict(x []float64) float64 {
	n := 0
	for t.Feature[n] != leafNode {
		if x[t.Feature[n]] <= t.Threshold[n] {
			n = t.Left[n]
		} else {
			n = t.Right[n]
		}
	}
	return t.Value[n]
}

func (t *Tree) validate(width int) error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return fmt.Errorf("tree node arrays differ in length")
	}
	for i, f := range t.Feature {
		if f == leafNode {
			continue
		}
		if f < 0 || f >= width {
			return fmt.Errorf("node %d splits on feature %d outside width %d", i, f, width)
		}
		if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

// treeParams bound the growth of a single tree.
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means every feature
}

// leafFunc computes the value stored at a leaf from the rows that reach it.
type leafFunc func(rows []int) float64

// growTree fits a tree to target by greedy variance reduction. On 0/1
// targets this ranks splits exactly as Gini impurity does.
func growTree(x [][]float64, target []float64, rows []int, p treeParams, leaf leafFunc, rng *rand.Rand) *Tree {
	width := len(x[0])
	b := &treeBuilder{
		x:      x,
		target: target,
		params: p,
		leaf:   leaf,
		rng:    rng,
		tree:   &Tree{importance: make([]float64, width)},
		width:  width,
	}
	b.build(rows, 0)
	return b.tree
}

type treeBuilder struct {
	x      [][]float64
	target []float64
	params treeParams
	leaf   leafFunc
	rng    *rand.Rand
	tree   *Tree
	width  int
}

func (b *treeBuilder) addNode() int {
	t := b.tree
	t.Feature = append(t.Feature, leafNode)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, leafNode)
	t.Right = append(t.Right, leafNode)
	t.Value = append(t.Value, 0)
	return len(t.Feature) - 1
}

func (b *treeBuilder) build(rows []int, depth int) int {
	id := b.addNode()
	b.tree.Value[id] = b.leaf(rows)

	if depth >= b.params.maxDepth || len(rows) < b.params.minSamplesSplit || len(rows) < 2*b.params.minSamplesLeaf {
		return id
	}
	sse := sumSquaredError(b.target, rows)
	if sse <= 1e-12 {
		return id
	}

	s, ok := b.bestSplit(rows, sse)
	if !ok {
		return id
	}

	left := make([]int, 0, s.nLeft)
	right := make([]int, 0, len(rows)-s.nLeft)
	for _, r := range rows {
		if b.x[r][s.feature] <= s.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	b.tree.importance[s.feature] += s.gain
	b.tree.Feature[id] = s.feature
	b.tree.Threshold[id] = s.threshold
	l := b.build(left, depth+1)
	b.tree.Left[id] = l
	r := b.build(right, depth+1)
	b.tree.Right[id] = r
	return id
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	nLeft     int
}

// bestSplit examines up to maxFeatures non-constant features in random order.
func (b *treeBuilder) bestSplit(rows []int, parentSSE float64) (split, bool) {
	limit := b.params.maxFeatures
	if limit <= 0 || limit > b.width {
		limit = b.width
	}

	var best split
	found := false
	examined := 0
	sorted := make([]int, len(rows))
	minLeaf := b.params.minSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	for _, f := range b.rng.Perm(b.width) {
		if examined >= limit {
			break
		}
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		if b.x[sorted[0]][f] == b.x[sorted[len(sorted)-1]][f] {
			continue
		}
		examined++

		var totalSum, totalSq float64
		for _, r := range sorted {
			v := b.target[r]
			totalSum += v
			totalSq += v * v
		}

		var leftSum, leftSq float64
		n := float64(len(sorted))
		for i := 0; i < len(sorted)-1; i++ {
			v := b.target[sorted[i]]
			leftSum += v
			leftSq += v * v

			nl := i + 1
			if nl < minLeaf || len(sorted)-nl < minLeaf {
				continue
			}
			cur, next := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}
			fl := float64(nl)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			childSSE := (leftSq - leftSum*leftSum/fl) + (rightSq - rightSum*rightSum/(n-fl))
			gain := parentSSE - childSSE
			if !found || gain > best.gain {
				th := cur + (next-cur)/2
				if th >= next {
					th = cur
				}
				best = split{feature: f, threshold: th, gain: gain, nLeft: nl}
				found = true
			}
		}
	}
	if !found || best.gain <= 0 {
		return split{}, false
	}
	return best, true
}

func sumSquaredError(target []float64, rows []int) float64 {
	var sum, sq float64
	for _, r := range rows {
		v := target[r]
		sum += v
		sq += v * v
	}
	return sq - sum*sum/float64(len(rows))
}

func meanLeaf(target []float64) leafFunc {
	return func(rows []int) float64 {
		var s float64
		for _, r := range rows {
			s += target[r]
		}
		return s / float64(len(rows))
	}
}

// normalize scales v to sum to 1, leaving an all-zero vector as is.
func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}
