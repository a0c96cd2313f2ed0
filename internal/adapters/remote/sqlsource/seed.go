package sqlsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/rostersync/internal/domain/types"
)

// Seed upserts rows into collection without publishing changes.
func (s *Source) Seed(ctx context.Context, collection string, rows ...types.Row) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			id := row.ID()
			if id == "" {
				return fmt.Errorf("seed %s: row without id", collection)
			}
			row = row.Clone()
			row[types.IDField] = id
			doc, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("seed %s/%s: %w", collection, id, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO "+tbl+" (id, doc) VALUES (?, ?)", id, string(doc)); err != nil {
				return fmt.Errorf("seed %s/%s: %w", collection, id, err)
			}
		}
		return nil
	})
}

// LoadSeed reads a YAML document mapping collection names to row lists and
// seeds every collection in it.
//
//	members:
//	  - {id: "1", name: Thrall, dkp: 150}
func (s *Source) LoadSeed(ctx context.Context, r io.Reader) (int, error) {
	var doc map[string][]map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("decode seed: %w", err)
	}

	for name := range doc {
		if !types.IsCollection(name) {
			return 0, fmt.Errorf("seed: unknown collection %q", name)
		}
	}

	total := 0
	for _, c := range types.Collections() {
		raw, ok := doc[c]
		if !ok {
			continue
		}
		rows := make([]types.Row, len(raw))
		for i, r := range raw {
			rows[i] = types.Row(r)
		}
		if err := s.Seed(ctx, c, rows...); err != nil {
			return total, err
		}
		total += len(rows)
	}
	return total, nil
}

// LoadSeedFile is LoadSeed on a file path.
func (s *Source) LoadSeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return s.LoadSeed(ctx, f)
}
