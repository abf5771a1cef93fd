package engine

import (
	"math"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity compares the overlapping prefix of a and b.
// Returns 0 when either side is empty or has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	a, b = a[:n], b[:n]
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	cos := floats.Dot(a, b) / (na * nb)
	// rounding can push identical vectors just past 1
	return math.Max(-1, math.Min(1, cos))
}

// FuzzySimilarity is 1 - editDistance/maxLen over lower-cased runes.
func FuzzySimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return clamp01(1 - float64(levenshtein(ra, rb))/float64(longest))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// finiteVector reports whether every component is a real number.
func finiteVector(v []float64) bool {
	return lo.EveryBy(v, func(x float64) bool {
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	})
}
