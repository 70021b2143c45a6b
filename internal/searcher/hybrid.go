package searcher

import (
	"math"
	"sort"
)

// Weights are relative; they are normalized over the components a row has
type Weights struct {
	Semantic float64
	Text     float64
}

// Candidate is one row with whatever component scores were computed for it
type Candidate struct {
	Table      string
	TableOrder int // position of Table in the searched table list
	RowID      int64
	Row        map[string]interface{}

	Keyword  *KeywordMatch // nil when keyword scoring was skipped
	Semantic *float64      // nil when the row has no usable vector

	vector interface{} // raw stored vector, decoded during scoring
}

// Scored is a candidate with its combined score
type Scored struct {
	Candidate
	Score float64
}

// Combine computes the weighted score of every candidate and returns them
// ordered by score descending, then row id ascending, then table order.
//
// Weights are normalized over the components present on each row. A row
// without a semantic score is ranked on keyword relevance alone, unless the
// text weight is zero: a row whose present components all carry zero weight
// scores 0, so text weight 0 ranks exactly like semantic-only search.
func Combine(candidates []Candidate, w Weights) []Scored {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Candidate: c, Score: combinedScore(c, w)}
	}
	sortScored(scored)
	return scored
}

func combinedScore(c Candidate, w Weights) float64 {
	var (
		sum   float64
		total float64
	)
	if c.Keyword != nil {
		sum += w.Text
		total += w.Text * c.Keyword.Score
	}
	if c.Semantic != nil {
		sum += w.Semantic
		total += w.Semantic * clamp01(*c.Semantic)
	}
	if sum == 0 {
		return 0
	}
	return clamp01(total / sum)
}

func sortScored(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RowID != b.RowID {
			return a.RowID < b.RowID
		}
		return a.TableOrder < b.TableOrder
	})
}

// validWeight reports a finite, non-negative weight
func validWeight(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
