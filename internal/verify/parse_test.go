package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/resilience"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		status model.VerificationStatus
		value  string
		url    string
	}{
		{"plain", `{"status":"correct"}`, model.StatusCorrect, "", ""},
		{"fenced", "```json\n{\"status\":\"wrong\",\"verified_value\":\"$5M\"}\n```", model.StatusWrong, "$5M", ""},
		{"bare fence", "```\n{\"status\":\"unverifiable\"}\n```", model.StatusUnverifiable, "", ""},
		{"prose around", `Sure. {"status": "wrong", "verified_value": "Bob", "source_url": "https://x.io"} Hope that helps {}`, model.StatusWrong, "Bob", "https://x.io"},
		{"braces in strings", `{"status":"wrong","verified_value":"{weird} \"quoted\" }"}`, model.StatusWrong, `{weird} "quoted" }`, ""},
		{"mixed case status", `{"status":" WRONG ","verified_value":"2"}`, model.StatusWrong, "2", ""},
		{"numeric value", `{"status":"wrong","verified_value":1000}`, model.StatusWrong, "1000", ""},
		{"nulls", `{"status":"correct","verified_value":null,"source_url":null}`, model.StatusCorrect, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, tt.value, v.VerifiedValue)
			assert.Equal(t, tt.url, v.SourceURL)
		})
	}
}

func TestParseVerdict_Invalid(t *testing.T) {
	for name, in := range map[string]string{
		"no object":      "I could not verify this.",
		"unknown status": `{"status":"maybe"}`,
		"missing status": `{"verified_value":"x"}`,
		"bad json":       `{"status": "correct",}`,
		"unterminated":   `{"status": "correct"`,
		"wrong type":     `{"status":"wrong","verified_value":["a"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVerdict(in)
			require.Error(t, err)
			assert.Equal(t, resilience.KindResponseParse, resilience.KindOf(err))
		})
	}
}

func TestNormalize(t *testing.T) {
	v := &Verdict{Status: model.StatusWrong}
	normalize(v, "10")
	assert.Equal(t, model.StatusUnverifiable, v.Status)

	v = &Verdict{Status: model.StatusWrong, VerifiedValue: "$2,000,000"}
	normalize(v, "$2M")
	assert.Equal(t, model.StatusCorrect, v.Status)

	v = &Verdict{Status: model.StatusWrong, VerifiedValue: "1,000 employees"}
	normalize(v, "10 employees")
	assert.Equal(t, model.StatusWrong, v.Status)
}
