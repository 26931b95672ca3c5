package reconcile

import (
	"github.com/sells-group/competitor-intel/internal/conflict"
	"github.com/sells-group/competitor-intel/internal/model"
)

// Scored pairs a source record with its computed score.
type Scored struct {
	Record model.SourceRecord
	Score  float64
}

// Summary converts the scored record into its reported form.
func (s Scored) Summary() model.SourceSummary {
	return model.SourceSummary{
		SourceType: s.Record.SourceType,
		SourceID:   s.Record.SourceID,
		SourceName: s.Record.SourceName,
		SourceURL:  s.Record.SourceURL,
		Origin:     s.Record.Origin,
		Value:      s.Record.Value,
		Score:      s.Score,
		AsOf:       s.Record.AsOf(),
		IsVerified: s.Record.IsVerified,
	}
}

// ConflictPolicy decides which rivals are reported as conflicts.
type ConflictPolicy interface {
	Name() string
	Conflicts(winner Scored, rivals []Scored, d conflict.Detector) []model.ConflictEntry
}

// Pairwise compares the winner against each rival independently and reports
// one entry per disagreeing rival.
type Pairwise struct{}

// Name returns "pairwise".
func (Pairwise) Name() string { return "pairwise" }

// Conflicts returns one entry per rival whose value disagrees with the winner.
func (Pairwise) Conflicts(winner Scored, rivals []Scored, d conflict.Detector) []model.ConflictEntry {
	var out []model.ConflictEntry
	for _, r := range rivals {
		c := d.Compare(winner.Record.Value, r.Record.Value)
		if !c.Conflict {
			continue
		}
		out = append(out, model.ConflictEntry{
			Winner:         winner.Summary(),
			Rival:          r.Summary(),
			Difference:     c.Difference,
			DifferenceType: c.Kind,
		})
	}
	return out
}

// Merged reports at most one entry per field: the highest-scoring
// disagreeing rival, with RivalCount set to the number of disagreeing rivals.
type Merged struct{}

// Name returns "merged".
func (Merged) Name() string { return "merged" }

// Conflicts collapses the pairwise entries into the first one.
func (Merged) Conflicts(winner Scored, rivals []Scored, d conflict.Detector) []model.ConflictEntry {
	pairs := Pairwise{}.Conflicts(winner, rivals, d)
	if len(pairs) == 0 {
		return nil
	}
	head := pairs[0]
	head.RivalCount = len(pairs)
	return []model.ConflictEntry{head}
}

// PolicyByName returns the named policy, defaulting to Pairwise.
func PolicyByName(name string) ConflictPolicy {
	if name == "merged" {
		return Merged{}
	}
	return Pairwise{}
}
