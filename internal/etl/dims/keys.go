package dims

import (
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
)

type KeyScore struct {
	Column     string  `json:"column"`
	Score      int     `json:"score"`
	Uniqueness float64 `json:"uniqueness"`
}

// ScoreColumn rates how likely a column is to be the primary key.
func ScoreColumn(name string, uniqueness float64) int {
	score := 0
	if strings.HasPrefix(name, "co") || strings.HasPrefix(name, "id") {
		score += 3
	}
	if strings.HasSuffix(name, "id") {
		score++
	}
	switch {
	case uniqueness >= 1.0:
		score += 5
	case uniqueness > 0.95:
		score += 3
	case uniqueness > 0.8:
		score++
	}
	return score
}

// Uniqueness is distinct values over rows for one column.
func Uniqueness(df dataframe.DataFrame, col string) float64 {
	n := df.Nrow()
	if n == 0 {
		return 0
	}
	seen := map[string]struct{}{}
	for _, v := range df.Col(col).Records() {
		seen[v] = struct{}{}
	}
	return float64(len(seen)) / float64(n)
}

// DetectKey scores every column and returns the best, with the full ranking.
// Ties keep file column order.
func DetectKey(df dataframe.DataFrame) (string, []KeyScore) {
	names := df.Names()
	scores := make([]KeyScore, len(names))
	for i, n := range names {
		u := Uniqueness(df, n)
		scores[i] = KeyScore{Column: n, Score: ScoreColumn(n, u), Uniqueness: u}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if len(scores) == 0 {
		return "", nil
	}
	return scores[0].Column, scores
}

// Duplicates counts key values that occur more than once.
func Duplicates(df dataframe.DataFrame, key string) int {
	counts := map[string]int{}
	for _, v := range df.Col(key).Records() {
		counts[v]++
	}
	dups := 0
	for _, c := range counts {
		if c > 1 {
			dups++
		}
	}
	return dups
}
