package verify

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/resilience"
)

// Verdict is the structured answer requested from grounded search.
type Verdict struct {
	Status        model.VerificationStatus `json:"status"`
	VerifiedValue string                   `json:"verified_value"`
	SourceURL     string                   `json:"source_url"`
	SourceName    string                   `json:"source_name"`
	Evidence      string                   `json:"evidence"`
}

const verdictSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"enum": ["correct", "wrong", "unverifiable"]},
    "verified_value": {"type": ["string", "number", "null"]},
    "source_url": {"type": ["string", "null"]},
    "source_name": {"type": ["string", "null"]},
    "evidence": {"type": ["string", "null"]}
  }
}`

var schema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("verdict.json", strings.NewReader(verdictSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("verdict.json")
}()

// ParseVerdict extracts the first JSON object from an answer, tolerating
// markdown fences and surrounding prose, and checks it against the verdict
// schema. Errors are KindResponseParse.
func ParseVerdict(text string) (*Verdict, error) {
	raw := firstObject(stripFences(text))
	if raw == "" {
		return nil, parseErr(eris.New("verify: no JSON object in response"))
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, parseErr(eris.Wrap(err, "verify: decode response"))
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, parseErr(eris.New("verify: response is not an object"))
	}
	if s, ok := m["status"].(string); ok {
		m["status"] = strings.ToLower(strings.TrimSpace(s))
	}
	if err := schema.Validate(m); err != nil {
		return nil, parseErr(eris.Wrap(err, "verify: response does not match schema"))
	}

	v := &Verdict{
		Status:        model.VerificationStatus(m["status"].(string)),
		VerifiedValue: scalar(m["verified_value"]),
		SourceURL:     scalar(m["source_url"]),
		SourceName:    scalar(m["source_name"]),
		Evidence:      scalar(m["evidence"]),
	}
	return v, nil
}

func parseErr(err error) error {
	return resilience.NewCollaboratorError(resilience.KindResponseParse, "verify", err)
}

// scalar renders a decoded JSON string or number; anything else is "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return ""
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} in s, honouring strings.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
