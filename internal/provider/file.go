package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/tabular"
)

// ManualEntry is one competitor's analyst-maintained values.
type ManualEntry struct {
	Name     string            `yaml:"name"`
	DataAsOf string            `yaml:"data_as_of"`
	Fields   map[string]string `yaml:"fields"`
	Sources  map[string]string `yaml:"sources"`
}

type manualFile struct {
	Competitors []ManualEntry `yaml:"competitors"`
}

// FileProvider serves manually verified values from a YAML file.
type FileProvider struct {
	entries map[string]ManualEntry
}

// LoadFileProvider reads a manual entries file. YAML files have the form:
//
//	competitors:
//	  - name: Acme
//	    data_as_of: 2026-01-15
//	    fields: {ceo: Jane Doe}
//	    sources: {ceo: https://acme.example/about}
//
// CSV and XLSX sheets carry one value per row with the columns name, field,
// value, source_url and data_as_of.
func LoadFileProvider(path string) (*FileProvider, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		recs, err := tabular.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "provider: read manual entries")
		}
		entries, err := entriesFromRecords(recs)
		if err != nil {
			return nil, eris.Wrapf(err, "provider: parse manual entries %s", path)
		}
		return NewFileProvider(entries)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read manual entries %s", path)
	}
	var mf manualFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, eris.Wrapf(err, "provider: parse manual entries %s", path)
	}
	return NewFileProvider(mf.Competitors)
}

// NewFileProvider indexes entries by case-folded name.
func NewFileProvider(entries []ManualEntry) (*FileProvider, error) {
	fp := &FileProvider{entries: make(map[string]ManualEntry, len(entries))}
	for _, e := range entries {
		key := nameKey(e.Name)
		if key == "" {
			return nil, eris.New("provider: manual entry without a name")
		}
		if e.DataAsOf != "" {
			if _, err := time.Parse("2006-01-02", e.DataAsOf); err != nil {
				return nil, eris.Wrapf(err, "provider: manual entry %q data_as_of", e.Name)
			}
		}
		for field := range e.Fields {
			if _, ok := model.Lookup(field); !ok {
				return nil, eris.Errorf("provider: manual entry %q has unknown field %q", e.Name, field)
			}
		}
		fp.entries[key] = e
	}
	return fp, nil
}

func (f *FileProvider) Name() string                 { return "file" }
func (f *FileProvider) SourceType() model.SourceType { return model.SourceManualVerified }

// QueryEntity returns the entry for name, or nil when there is none.
func (f *FileProvider) QueryEntity(_ context.Context, name string) (*Result, error) {
	e, ok := f.entries[nameKey(name)]
	if !ok {
		return nil, nil
	}
	res := &Result{
		Fields:     make(map[string]string, len(e.Fields)),
		SourceURLs: make(map[string]string, len(e.Sources)),
	}
	for k, v := range e.Fields {
		res.Fields[k] = v
	}
	for k, v := range e.Sources {
		res.SourceURLs[k] = v
	}
	if e.DataAsOf != "" {
		t, _ := time.Parse("2006-01-02", e.DataAsOf)
		res.DataAsOf = &t
	}
	return res, nil
}

// entriesFromRecords groups sheet rows by competitor, keeping first-seen order.
func entriesFromRecords(recs []tabular.Record) ([]ManualEntry, error) {
	var entries []ManualEntry
	index := make(map[string]int)
	for i, r := range recs {
		name, field := r["name"], r["field"]
		if name == "" || field == "" {
			return nil, eris.Errorf("row %d: name and field are required", i+2)
		}
		key := nameKey(name)
		pos, ok := index[key]
		if !ok {
			pos = len(entries)
			index[key] = pos
			entries = append(entries, ManualEntry{
				Name:    name,
				Fields:  make(map[string]string),
				Sources: make(map[string]string),
			})
		}
		e := &entries[pos]
		e.Fields[field] = r["value"]
		if u := r["source_url"]; u != "" {
			e.Sources[field] = u
		}
		if d := r["data_as_of"]; d != "" && d > e.DataAsOf {
			e.DataAsOf = d
		}
	}
	return entries, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
