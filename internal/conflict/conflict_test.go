package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/competitor-intel/internal/model"
)

func TestParseNumeric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"500", 500, true},
		{"1,200 employees", 1200, true},
		{"$2M", 2e6, true},
		{"$2.5 million", 2.5e6, true},
		{"€40k", 40e3, true},
		{"$1.2B", 1.2e9, true},
		{"3 billion", 3e9, true},
		{"1 trillion", 1e12, true},
		{"15%", 15, true},
		{"$2-5M", 3.5e6, true},
		{"$2M - $5M", 3.5e6, true},
		{"500 to 1,000", 750, true},
		{"10–20 thousand", 15e3, true},
		{"approximately 250 customers", 250, true},
		{"4.5/5", 4.5, true},
		{"6 months", 6, true},
		{"B2B SaaS", 0, false},
		{"Jane Doe", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-6)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("Acme Inc", "  ACME   inc "))
	assert.InDelta(t, 1.0/3, Similarity("Acme Inc", "Acme Incorporated"), 1e-9)
	assert.Equal(t, 0.0, Similarity("Jane Doe", "John Smith"))
	assert.Equal(t, 0.0, Similarity("Jane", ""))
	assert.Equal(t, 1.0, Similarity("", ""))
}

func TestRelativeDifference(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.5, RelativeDifference(2e6, 5e6), 1e-9)
	assert.InDelta(t, 0.6, RelativeDifference(5e6, 2e6), 1e-9)
	assert.InDelta(t, 0.25, RelativeDifference(100, 125), 1e-9)
	assert.InDelta(t, 20.0/520.0, RelativeDifference(520, 500), 1e-9)
	assert.Equal(t, 0.0, RelativeDifference(0, 0))
	assert.InDelta(t, 1.0, RelativeDifference(0, 10), 1e-9)
}

func TestDetector_Compare(t *testing.T) {
	t.Parallel()

	d := NewDetector()

	tests := []struct {
		name     string
		a, b     string
		conflict bool
		kind     model.DifferenceType
	}{
		{"revenue far apart", "$2M", "$5M", true, model.DifferenceNumeric},
		{"headcount close", "500", "520", false, model.DifferenceNumeric},
		{"exactly twenty percent", "100", "80", false, model.DifferenceNumeric},
		{"just over twenty percent", "100", "79", true, model.DifferenceNumeric},
		{"quarter above winner", "100", "125", true, model.DifferenceNumeric},
		{"fifteen percent above winner", "100", "115", false, model.DifferenceNumeric},
		{"identical text", "Acme Inc", "acme inc", false, model.DifferenceString},
		{"different suffix", "Acme Inc", "Acme Incorporated", true, model.DifferenceString},
		{"number vs text", "500", "five hundred", true, model.DifferenceString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := d.Compare(tt.a, tt.b)
			assert.Equal(t, tt.conflict, c.Conflict)
			assert.Equal(t, tt.kind, c.Kind)
		})
	}
}

func TestDetector_CustomThresholds(t *testing.T) {
	t.Parallel()

	d := Detector{NumericThreshold: 0.03, SimilarityThreshold: 0.3}
	assert.True(t, d.Compare("500", "520").Conflict)
	assert.False(t, d.Compare("500", "510").Conflict)
	assert.False(t, d.Compare("Acme Inc", "Acme Incorporated").Conflict)
}

func TestEquivalent(t *testing.T) {
	t.Parallel()

	assert.True(t, Equivalent("$2M", "2,000,000"))
	assert.True(t, Equivalent("Usage-based", "usage-based"))
	assert.False(t, Equivalent("500", "520"))
	assert.False(t, Equivalent("Jane Doe", "Jane D."))
}
