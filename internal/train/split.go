package train

import (
	"math"
	"math/rand"
)

// stratifiedSplit partitions row indices into train and test sets, keeping
// the class ratio. Every class with two or more rows lands in both sets.
func stratifiedSplit(y []int, testSize float64, seed int64) (trainIdx, testIdx []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	for _, label := range []int{0, 1} {
		rows := byClass[label]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		n := len(rows)
		nTest := int(math.Round(float64(n) * testSize))
		if n >= 2 {
			nTest = min(max(nTest, 1), n-1)
		} else {
			nTest = 0
		}
		testIdx = append(testIdx, rows[:nTest]...)
		trainIdx = append(trainIdx, rows[nTest:]...)
	}
	return trainIdx, testIdx
}

func take[T any](src []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = src[j]
	}
	return out
}
