// Package conflict decides whether two claimed values for the same field
// disagree.
package conflict

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/sells-group/competitor-intel/internal/model"
)

const (
	// DefaultNumericThreshold is the relative difference above which two
	// numbers conflict.
	DefaultNumericThreshold = 0.20
	// DefaultSimilarityThreshold is the word-set similarity below which two
	// strings conflict.
	DefaultSimilarityThreshold = 0.85
)

var (
	folder = cases.Fold()

	digitGrouping = regexp.MustCompile(`(\d),(\d{3})`)
)

var multipliers = map[string]float64{
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"mm":       1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
	"t":        1e12,
	"trillion": 1e12,
}

var rangeSeparators = map[string]bool{"-": true, "–": true, "—": true, "to": true}

type numToken struct {
	value      float64
	suffix     string
	start, end int
}

// ParseNumeric extracts a number from a free-form value such as "$2.5M",
// "15%", "1,200 employees" or "$2-5 million". Ranges resolve to their
// midpoint. ok is false when the value carries no number.
func ParseNumeric(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for digitGrouping.MatchString(s) {
		s = digitGrouping.ReplaceAllString(s, "$1$2")
	}

	toks := scanNumbers(s, 2)
	if len(toks) == 0 {
		return 0, false
	}
	first := toks[0]
	if len(toks) > 1 && rangeSeparators[strings.Trim(s[first.end:toks[1].start], " $€£¥")] {
		second := toks[1]
		v := first.value
		if first.suffix == "" && second.suffix != "" {
			v *= multipliers[second.suffix]
		}
		return (v + second.value) / 2, true
	}
	return first.value, true
}

// scanNumbers returns up to limit standalone numbers in s with their scale
// suffixes applied. Digits glued to letters ("b2b") are ignored.
func scanNumbers(s string, limit int) []numToken {
	var toks []numToken
	i := 0
	for i < len(s) && len(toks) < limit {
		if !isDigit(s[i]) {
			i++
			continue
		}
		if i > 0 && (isLower(s[i-1]) || s[i-1] == '.') {
			for i < len(s) && (isDigit(s[i]) || isLower(s[i])) {
				i++
			}
			continue
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
			i++
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
		v, err := strconv.ParseFloat(s[start:i], 64)
		if err != nil {
			continue
		}
		tok := numToken{value: v, start: start, end: i}

		j := i
		for j < len(s) && s[j] == ' ' {
			j++
		}
		k := j
		for k < len(s) && isLower(s[k]) {
			k++
		}
		if mul, ok := multipliers[s[j:k]]; ok && k > j {
			tok.value *= mul
			tok.suffix = s[j:k]
			tok.end = k
			i = k
		}
		toks = append(toks, tok)
	}
	return toks
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

// Normalize case-folds s and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(folder.String(s)), " ")
}

func wordSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(folder.String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard similarity of the case-folded word sets of a and
// b. Identical normalized strings score 1.
func Similarity(a, b string) float64 {
	if Normalize(a) == Normalize(b) {
		return 1
	}
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// RelativeDifference is |a-b| / |a|, measured against the reference value a.
// A zero reference falls back to |b|; two zeros differ by 0.
func RelativeDifference(a, b float64) float64 {
	denom := math.Abs(a)
	if denom == 0 {
		denom = math.Abs(b)
	}
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

// Comparison is the outcome of comparing two values.
type Comparison struct {
	Conflict   bool
	Difference float64
	Kind       model.DifferenceType
}

// Detector compares values using configurable thresholds.
type Detector struct {
	NumericThreshold    float64
	SimilarityThreshold float64
}

// NewDetector returns a Detector with the default thresholds.
func NewDetector() Detector {
	return Detector{
		NumericThreshold:    DefaultNumericThreshold,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Compare reports whether b conflicts with the reference value a (the
// winner). Two numbers conflict when their difference relative to a exceeds
// NumericThreshold; anything else conflicts when
// word-set similarity falls below SimilarityThreshold.
func (d Detector) Compare(a, b string) Comparison {
	na, aok := ParseNumeric(a)
	nb, bok := ParseNumeric(b)
	if aok && bok {
		diff := RelativeDifference(na, nb)
		return Comparison{Conflict: diff > d.NumericThreshold, Difference: diff, Kind: model.DifferenceNumeric}
	}
	sim := Similarity(a, b)
	return Comparison{Conflict: sim < d.SimilarityThreshold, Difference: sim, Kind: model.DifferenceString}
}

// Equivalent reports whether a and b state the same value: equal numbers, or
// equal normalized text.
func Equivalent(a, b string) bool {
	na, aok := ParseNumeric(a)
	nb, bok := ParseNumeric(b)
	if aok && bok {
		return RelativeDifference(na, nb) < 1e-9
	}
	return Normalize(a) == Normalize(b)
}
