package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/store"
)

// kbImport is one competitor's block in an import-kb file. When EntityID is
// empty the competitor is matched by name, and created if missing.
type kbImport struct {
	EntityID   string               `json:"entity_id"`
	EntityName string               `json:"entity_name"`
	Website    string               `json:"website"`
	Records    []model.SourceRecord `json:"records"`
}

var importKBCmd = &cobra.Command{
	Use:   "import-kb <file.json>",
	Short: "Load knowledge-base extractions from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blocks, err := readKBImport(args[0])
		if err != nil {
			return err
		}
		if err := cfg.Validate("import-kb"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := importKB(ctx, st, blocks)
		if err != nil {
			return err
		}
		zap.L().Info("kb import complete",
			zap.String("file", args[0]),
			zap.Int("competitors", len(blocks)),
			zap.Int64("records", n),
		)
		return nil
	},
}

func readKBImport(path string) ([]kbImport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var blocks []kbImport
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	for i, b := range blocks {
		if b.EntityID == "" && strings.TrimSpace(b.EntityName) == "" {
			return nil, eris.Errorf("block %d: entity_id or entity_name is required", i)
		}
		for j, r := range b.Records {
			if r.Field == "" {
				return nil, eris.Errorf("block %d record %d: field is required", i, j)
			}
			blocks[i].Records[j].SourceType = model.ParseSourceType(string(r.SourceType))
			blocks[i].Records[j].Origin = model.OriginKB
		}
	}
	return blocks, nil
}

// importKB resolves each block's competitor and inserts its records. It
// returns the number of records written.
func importKB(ctx context.Context, st store.Store, blocks []kbImport) (int64, error) {
	existing, err := st.ListCompetitors(ctx)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c.ID
	}

	var total int64
	for _, b := range blocks {
		id := b.EntityID
		if id == "" {
			key := strings.ToLower(strings.TrimSpace(b.EntityName))
			id = byName[key]
			if id == "" {
				c := &model.Competitor{Name: strings.TrimSpace(b.EntityName), Website: b.Website}
				if err := st.UpsertCompetitor(ctx, c); err != nil {
					return total, err
				}
				id = c.ID
				byName[key] = id
			}
		}
		n, err := st.InsertKBExtractions(ctx, id, b.Records)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func init() {
	rootCmd.AddCommand(importKBCmd)
}
