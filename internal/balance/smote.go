// Package balance oversamples the minority class of a labelled feature matrix
// with synthetic points interpolated between near neighbours (SMOTE).
package balance

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Defaults used by the trainer.
const (
	DefaultNeighbors = 3
	DefaultSeed      = 42
)

var (
	// ErrInsufficientMinority is returned when the minority class has fewer
	// than two samples, leaving no neighbour to interpolate towards.
	ErrInsufficientMinority = errors.New("balancer: insufficient minority samples")
	// ErrSingleClass is returned when only one label value is present.
	ErrSingleClass = errors.New("balancer: training data contains a single class")
)

// SMOTE holds the oversampler parameters.
type SMOTE struct {
	Neighbors int
	Seed      int64
}

// New returns a SMOTE with the given neighbour count and seed. A non-positive
// k means DefaultNeighbors.
func New(k int, seed int64) *SMOTE {
	if k <= 0 {
		k = DefaultNeighbors
	}
	return &SMOTE{Neighbors: k, Seed: seed}
}

// Resample returns x and y extended with synthetic minority rows until both
// classes have equal counts. Original rows are returned first and unchanged.
// Labels must be 0 or 1.
func (s *SMOTE) Resample(x [][]float64, y []int) ([][]float64, []int, error) {
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("balancer: %d rows but %d labels", len(x), len(y))
	}

	var idx [2][]int
	for i, label := range y {
		if label != 0 && label != 1 {
			return nil, nil, fmt.Errorf("balancer: label %d at row %d is not binary", label, i)
		}
		idx[label] = append(idx[label], i)
	}
	if len(idx[0]) == 0 || len(idx[1]) == 0 {
		return nil, nil, ErrSingleClass
	}

	minority := 1
	if len(idx[0]) < len(idx[1]) {
		minority = 0
	}
	minIdx := idx[minority]
	need := len(idx[1-minority]) - len(minIdx)

	outX := make([][]float64, len(x), len(x)+need)
	copy(outX, x)
	outY := make([]int, len(y), len(y)+need)
	copy(outY, y)
	if need == 0 {
		return outX, outY, nil
	}
	if len(minIdx) < 2 {
		return nil, nil, fmt.Errorf("%w: class %d has %d", ErrInsufficientMinority, minority, len(minIdx))
	}

	k := s.Neighbors
	if k <= 0 {
		k = DefaultNeighbors
	}
	if k > len(minIdx)-1 {
		k = len(minIdx) - 1
	}

	points := make([][]float64, len(minIdx))
	for i, row := range minIdx {
		points[i] = x[row]
	}
	neighbors := nearest(points, k)

	rng := rand.New(rand.NewSource(s.Seed))
	for n := 0; n < need; n++ {
		i := rng.Intn(len(points))
		toward := neighbors[i][rng.Intn(k)]
		gap := rng.Float64()

		base := points[i]
		synth := make([]float64, len(base))
		for c := range base {
			synth[c] = base[c] + gap*(toward[c]-base[c])
		}
		outX = append(outX, synth)
		outY = append(outY, minority)
	}
	return outX, outY, nil
}

// nearest returns, for every point, its k nearest other points by Euclidean
// distance, closest first. Equal distances order by coordinates so the result
// does not depend on the tree layout.
func nearest(points [][]float64, k int) [][][]float64 {
	data := make(kdtree.Points, len(points))
	for i, p := range points {
		data[i] = kdtree.Point(p)
	}
	tree := kdtree.New(data, false)

	out := make([][][]float64, len(points))
	for i, p := range points {
		q := kdtree.Point(p)

		// One extra slot: the query point is in the tree at distance 0.
		keep := kdtree.NewNKeeper(k + 1)
		tree.NearestSet(keep, q)
		radius := 0.0
		for _, c := range keep.Heap {
			if c.Comparable != nil {
				radius = math.Max(radius, c.Dist)
			}
		}

		// Collect everything at the k-th distance too, so ties resolve the
		// same way whatever the tree layout.
		within := kdtree.NewDistKeeper(math.Nextafter(radius, math.Inf(1)))
		tree.NearestSet(within, q)

		found := make([]kdtree.ComparableDist, 0, len(within.Heap))
		for _, c := range within.Heap {
			if c.Comparable != nil {
				found = append(found, c)
			}
		}
		sort.SliceStable(found, func(a, b int) bool {
			if found[a].Dist != found[b].Dist {
				return found[a].Dist < found[b].Dist
			}
			return lessPoint(found[a].Comparable.(kdtree.Point), found[b].Comparable.(kdtree.Point))
		})
		if len(found) > 0 && found[0].Dist == 0 {
			found = found[1:]
		}

		nn := make([][]float64, 0, k)
		for _, c := range found {
			if len(nn) == k {
				break
			}
			nn = append(nn, c.Comparable.(kdtree.Point))
		}
		out[i] = nn
	}
	return out
}

func lessPoint(a, b kdtree.Point) bool {
	for d := range a {
		if a[d] != b[d] {
			return a[d] < b[d]
		}
	}
	return false
}
