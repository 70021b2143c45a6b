package searcher

import (
	"strings"
	"unicode"

	"github.com/dshills/hybridsearch-mcp/internal/storage"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// Keyword sub-signal weights; they sum to 1 so a column scores at most 1
const (
	phraseWeight   = 0.4
	termWeight     = 0.4
	positionWeight = 0.2

	// importanceBoost multiplies identity-like columns such as title or name
	importanceBoost = 1.5

	// SnippetLength is the snippet window in runes
	SnippetLength = 150
	ellipsis      = "..."
)

// Stop words dropped from queries unless the query has nothing else
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true,
}

var identityColumns = map[string]bool{
	"title": true, "name": true, "subject": true, "heading": true,
	"label": true, "topic": true, "caption": true,
}

// KeywordMatch is the keyword relevance of one row
type KeywordMatch struct {
	Score   float64
	Snippet string
	Quality types.Quality
	Column  string // best matching column, empty when nothing matched
}

// token is a lowercase word and its rune offset in the source text
type token struct {
	text   string
	offset int
}

// tokenize splits on anything that is not a letter or digit
func tokenize(runes []rune) []token {
	var (
		tokens []token
		start  = -1
	)
	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, token{text: string(runes[start:i]), offset: start})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: string(runes[start:]), offset: start})
	}
	return tokens
}

func lowerRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// QueryTerms returns the distinct lowercase terms of a query in order of
// appearance. Stop words are dropped unless the query consists only of them.
func QueryTerms(query string) []string {
	all := tokenize(lowerRunes(query))
	seen := make(map[string]bool, len(all))
	var terms, stops []string
	for _, t := range all {
		if seen[t.text] {
			continue
		}
		seen[t.text] = true
		if stopWords[t.text] {
			stops = append(stops, t.text)
			continue
		}
		terms = append(terms, t.text)
	}
	if len(terms) == 0 {
		return stops
	}
	return terms
}

// IsImportantColumn reports identity-like columns that get a score multiplier
func IsImportantColumn(name string) bool {
	n := strings.ToLower(name)
	return identityColumns[n] || strings.HasSuffix(n, "_name") || strings.HasSuffix(n, "_title")
}

// KeywordScorer scores rows against one query. Build it once per query.
type KeywordScorer struct {
	phrase string
	terms  []string
	set    map[string]bool
}

// NewKeywordScorer prepares query terms and the normalized phrase
func NewKeywordScorer(query string) *KeywordScorer {
	terms := QueryTerms(query)
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return &KeywordScorer{
		phrase: strings.Join(strings.Fields(strings.ToLower(query)), " "),
		terms:  terms,
		set:    set,
	}
}

// Score rates a row over its candidate text columns. The result is in
// [0,1] and is 0 exactly when no query term occurs in any column.
func (k *KeywordScorer) Score(row map[string]interface{}, columns []string) KeywordMatch {
	match := KeywordMatch{Quality: types.QualityLow}
	if len(k.terms) == 0 || len(columns) == 0 {
		return match
	}

	var (
		total, maxTotal float64
		bestScore       float64
		bestText        []rune
		bestOffset      = -1
	)
	for _, col := range columns {
		importance := 1.0
		if IsImportantColumn(col) {
			importance = importanceBoost
		}
		maxTotal += importance

		text := storage.TextValue(row[col])
		if text == "" {
			continue
		}
		score, offset := k.scoreText(text)
		score *= importance
		total += score

		if offset >= 0 && score > bestScore {
			bestScore = score
			bestText = []rune(text)
			bestOffset = offset
			match.Column = col
		}
	}

	match.Score = clamp01(total / maxTotal)
	match.Quality = types.QualityFor(match.Score)
	if bestOffset >= 0 {
		match.Snippet = Snippet(bestText, bestOffset)
	}
	return match
}

// scoreText returns the unweighted column score and the rune offset of the
// first matching term, or -1 when no term matches.
func (k *KeywordScorer) scoreText(text string) (float64, int) {
	lower := lowerRunes(text)
	tokens := tokenize(lower)

	matched := make(map[string]bool, len(k.terms))
	first := -1
	for _, t := range tokens {
		if !k.set[t.text] {
			continue
		}
		matched[t.text] = true
		if first < 0 {
			first = t.offset
		}
	}
	if len(matched) == 0 {
		return 0, -1
	}

	var score float64
	if k.phrase != "" && strings.Contains(string(lower), k.phrase) {
		score += phraseWeight
	}
	score += termWeight * float64(len(matched)) / float64(len(k.terms))
	score += positionWeight * (1 - float64(first)/float64(len(lower)))
	return score, first
}

// Snippet returns a window of at most SnippetLength runes centered on offset,
// with ellipsis markers where the window cuts the text.
func Snippet(text []rune, offset int) string {
	if len(text) <= SnippetLength {
		return string(text)
	}
	if offset < 0 {
		offset = 0
	}

	start := offset - SnippetLength/2
	if start < 0 {
		start = 0
	}
	end := start + SnippetLength
	if end > len(text) {
		end = len(text)
		start = end - SnippetLength
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(strings.TrimSpace(string(text[start:end])))
	if end < len(text) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
