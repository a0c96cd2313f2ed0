// Package sqlsource is a SQLite-backed remote.Source for local development
// and integration tests. Each collection is a table of JSON documents keyed
// by id; committed writes are published to subscribers.
package sqlsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
)

var column = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Source implements remote.Source on a SQLite database.
type Source struct {
	db     *sql.DB
	broker *remote.Broker
	log    logger.Logger
}

var _ remote.Source = (*Source)(nil)

// Open opens (creating if needed) the database at dsn and ensures one table
// per collection exists.
func Open(ctx context.Context, dsn string, opts ...Option) (*Source, error) {
	cfg := config{buffer: remote.DefaultBuffer, log: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	for _, c := range types.Collections() {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, c)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create table %s: %w", c, err)
		}
	}

	return &Source{
		db:     db,
		broker: remote.NewBroker(cfg.buffer),
		log:    cfg.log.Named("sqlsource"),
	}, nil
}

// Close ends every subscription and closes the database.
func (s *Source) Close() error {
	s.broker.Close()
	return s.db.Close()
}

func table(collection string) (string, error) {
	if !types.IsCollection(collection) {
		return "", fmt.Errorf("%w: %s", remote.ErrUnknownCollection, collection)
	}
	return fmt.Sprintf("%q", collection), nil
}

func (s *Source) Select(ctx context.Context, collection string, order types.Order) ([]types.Row, error) {
	tbl, err := table(collection)
	if err != nil {
		return nil, err
	}

	query := "SELECT doc FROM " + tbl
	var args []any
	if order.Column != "" {
		if !column.MatchString(order.Column) {
			return nil, fmt.Errorf("invalid order column %q", order.Column)
		}
		dir := "DESC"
		if order.Ascending {
			dir = "ASC"
		}
		query += " ORDER BY json_extract(doc, ?) " + dir + ", rowid"
		args = append(args, "$."+order.Column)
	} else {
		query += " ORDER BY rowid"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		row, err := decode(doc)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	return out, nil
}

func (s *Source) Insert(ctx context.Context, collection string, row types.Row) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	id := row.ID()
	if id == "" {
		return remote.ErrMissingID
	}
	row = row.Clone()
	row[types.IDField] = id

	doc, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO "+tbl+" (id, doc) VALUES (?, ?)", id, string(doc)); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s/%s", remote.ErrConflict, collection, id)
		}
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	stored, _ := decode(string(doc))
	s.publish(ctx, types.Change{Collection: collection, Kind: types.Insert, New: stored})
	return nil
}

func (s *Source) Update(ctx context.Context, collection, id string, patch types.Row) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}

	var oldRow, newRow types.Row
	err = s.tx(ctx, func(tx *sql.Tx) error {
		old, err := load(ctx, tx, tbl, id)
		if err != nil {
			return err
		}
		next := remote.Merge(old, patch)
		next[types.IDField] = old[types.IDField]
		doc, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE "+tbl+" SET doc = ? WHERE id = ?", string(doc), id); err != nil {
			return err
		}
		oldRow = old
		newRow, err = decode(string(doc))
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, types.Change{Collection: collection, Kind: types.Update, New: newRow, Old: oldRow})
	return nil
}

func (s *Source) Delete(ctx context.Context, collection, id string) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}

	var oldRow types.Row
	err = s.tx(ctx, func(tx *sql.Tx) error {
		old, err := load(ctx, tx, tbl, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tbl+" WHERE id = ?", id); err != nil {
			return err
		}
		oldRow = old
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, types.Change{Collection: collection, Kind: types.Delete, Old: oldRow})
	return nil
}

func (s *Source) Subscribe(ctx context.Context) (remote.Subscription, error) {
	return s.broker.Subscribe(ctx)
}

func (s *Source) publish(ctx context.Context, ch types.Change) {
	s.log.Debug(ctx, "change committed",
		logger.String("collection", ch.Collection),
		logger.String("kind", string(ch.Kind)),
		logger.String("id", ch.RecordID()))
	s.broker.Publish(ch)
}

func (s *Source) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func load(ctx context.Context, tx *sql.Tx, tbl, id string) (types.Row, error) {
	var doc string
	err := tx.QueryRowContext(ctx, "SELECT doc FROM "+tbl+" WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remote.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

func decode(doc string) (types.Row, error) {
	var row types.Row
	if err := json.Unmarshal([]byte(doc), &row); err != nil {
		return nil, err
	}
	return row, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
