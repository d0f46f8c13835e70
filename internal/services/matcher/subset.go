package matcher

import (
	"sort"

	"github.com/shopspring/decimal"
)

// withinTolerance reports monetary equality under the configured margin
func withinTolerance(x, y, tol decimal.Decimal) bool {
	return x.Sub(y).Abs().LessThanOrEqual(tol)
}

// subsetSums finds every index subset of amounts whose sum lands within
// tolerance of target. minSize filters trivial subsets. The search walks
// amounts in descending order and prunes on the running and remaining sums;
// it stops early once maxSubsets+1 solutions exist so the caller can reject
// the search space without enumerating it.
func subsetSums(amounts []decimal.Decimal, target, tol decimal.Decimal, minSize, maxSubsets int) ([][]int, bool) {
	order := make([]int, len(amounts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return amounts[order[a]].GreaterThan(amounts[order[b]])
	})

	suffix := make([]decimal.Decimal, len(order)+1)
	for i := len(order) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1].Add(amounts[order[i]])
	}

	var (
		solutions [][]int
		current   []int
		walk      func(pos int, sum decimal.Decimal)
		truncated bool
	)
	walk = func(pos int, sum decimal.Decimal) {
		if truncated {
			return
		}
		if len(current) >= minSize && withinTolerance(sum, target, tol) {
			picked := make([]int, len(current))
			copy(picked, current)
			solutions = append(solutions, picked)
			if len(solutions) > maxSubsets {
				truncated = true
			}
			return
		}
		if pos == len(order) {
			return
		}
		// No remaining amount can close the gap.
		if sum.Add(suffix[pos]).LessThan(target.Sub(tol)) {
			return
		}
		// Already past the target.
		if sum.GreaterThan(target.Add(tol)) {
			return
		}
		current = append(current, order[pos])
		walk(pos+1, sum.Add(amounts[order[pos]]))
		current = current[:len(current)-1]
		walk(pos+1, sum)
	}
	walk(0, decimal.Zero)

	for _, s := range solutions {
		sort.Ints(s)
	}
	return solutions, truncated
}
