package osfp

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PerfectScore is the score of an entry that matches on every criterion.
// It must equal maxScore(criteria).
const PerfectScore = 11.5

// DefaultTopN is the number of best guesses kept when the caller passes n <= 0.
const DefaultTopN = 3

// minClassSamples is the smallest OS class that gets an average score.
const minClassSamples = 8

// criterion is one weighted comparison between an observed signature and a
// database entry. When match fails and fallback is set, the fallback is tried
// instead; the two can never both score.
type criterion struct {
	name     string
	weight   float64
	match    func(obs, ref *Signature) bool
	fallback *criterion
}

var criteria = []criterion{
	{name: "ttl", weight: 1.5, match: func(o, r *Signature) bool { return BucketTTL(o.TTL) == BucketTTL(r.TTL) }},
	{name: "df", weight: 1, match: func(o, r *Signature) bool { return o.DF == r.DF }},
	{name: "mf", weight: 1, match: func(o, r *Signature) bool { return o.MF == r.MF }},
	{name: "window", weight: 1.5, match: func(o, r *Signature) bool { return o.Window == r.Window }},
	{name: "flags", weight: 1, match: func(o, r *Signature) bool { return o.Flags == r.Flags }},
	{name: "header_length", weight: 1, match: func(o, r *Signature) bool { return o.HeaderLength == r.HeaderLength }},
	{name: "mss", weight: 1.5, match: func(o, r *Signature) bool { return intPtrEqual(o.MSS, r.MSS) }},
	{
		name:   "options",
		weight: 3,
		match:  func(o, r *Signature) bool { return o.Options == r.Options },
		fallback: &criterion{
			name:   "options_order",
			weight: 2,
			match:  func(o, r *Signature) bool { return OrderKey(o.Options) == OrderKey(r.Options) },
		},
	},
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// maxScore is the best score the criteria table can award.
func maxScore(table []criterion) float64 {
	var total float64
	for _, c := range table {
		w := c.weight
		if c.fallback != nil && c.fallback.weight > w {
			w = c.fallback.weight
		}
		total += w
	}
	return total
}

// Score compares obs against ref using the criteria table.
func Score(obs, ref *Signature) float64 {
	var score float64
	for i := range criteria {
		c := &criteria[i]
		switch {
		case c.match(obs, ref):
			score += c.weight
		case c.fallback != nil && c.fallback.match(obs, ref):
			score += c.fallback.weight
		}
	}
	return score
}

// ScoreEntry is the score of one database entry, kept only during Classify.
type ScoreEntry struct {
	Index int
	Score float64
	OS    string
}

// Guess is one best-scoring database match.
type Guess struct {
	Score string  `json:"score"` // "<score>/<perfect>"
	OS    string  `json:"os"`
	Value float64 `json:"-"`
}

// Classification is the result of matching one fingerprint against the database.
type Classification struct {
	PerfectScore    float64           `json:"perfectScore"`
	BestNGuesses    []Guess           `json:"bestNGuesses"`
	AvgScoreOsClass map[string]string `json:"avgScoreOsClass"`
	Fingerprint     Fingerprint       `json:"fp"`
	ClassifiedAt    time.Time         `json:"classifiedAt"`
}

// Best returns the top guess, if any.
func (c *Classification) Best() (Guess, bool) {
	if len(c.BestNGuesses) == 0 {
		return Guess{}, false
	}
	return c.BestNGuesses[0], true
}

// Classify scores fp against every database entry and returns:
//
//   - every entry sharing the highest score, in database order, capped at n
//   - the mean score of each OS label with at least 8 entries
//
// The database is never modified. An empty database yields no guesses.
func Classify(fp *Fingerprint, db *Database, n int) Classification {
	if n <= 0 {
		n = DefaultTopN
	}

	obs := fp.Signature()
	scores := make([]ScoreEntry, 0, db.Len())
	db.All(func(i int, e *Entry) bool {
		scores = append(scores, ScoreEntry{
			Index: i,
			Score: Score(&obs, &e.Signature),
			OS:    e.OS.Name,
		})
		return true
	})

	return Classification{
		PerfectScore:    PerfectScore,
		BestNGuesses:    bestGuesses(scores, n),
		AvgScoreOsClass: classAverages(scores),
		Fingerprint:     *fp,
		ClassifiedAt:    time.Now(),
	}
}

func bestGuesses(scores []ScoreEntry, n int) []Guess {
	ranked := make([]ScoreEntry, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	guesses := make([]Guess, 0, n)
	if len(ranked) == 0 {
		return guesses
	}
	top := ranked[0].Score
	for _, s := range ranked {
		if s.Score != top || len(guesses) == n {
			break
		}
		guesses = append(guesses, Guess{
			Score: FormatScore(s.Score),
			OS:    s.OS,
			Value: s.Score,
		})
	}
	return guesses
}

func classAverages(scores []ScoreEntry) map[string]string {
	byOS := make(map[string][]float64)
	for _, s := range scores {
		if s.OS == "" {
			continue
		}
		byOS[s.OS] = append(byOS[s.OS], s.Score)
	}

	avg := make(map[string]string)
	for name, vals := range byOS {
		if len(vals) < minClassSamples {
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		mean := math.RoundToEven(sum/float64(len(vals))*100) / 100
		avg[name] = fmt.Sprintf("avg=%s, N=%d", formatMean(mean), len(vals))
	}
	return avg
}

// FormatScore renders a score against the perfect score, e.g. "10/11.5".
func FormatScore(score float64) string {
	return formatFloat(score) + "/" + formatFloat(PerfectScore)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatMean always shows a fractional part: "10.0", "7.12".
func formatMean(f float64) string {
	s := formatFloat(f)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
