package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Table names a graph table and the columns a load writes. The first column
// is the primary key.
type Table struct {
	Name    string
	Columns []string
}

// LoadResult reports how a Load was applied.
type LoadResult struct {
	Rows int64
	// Merged is set when the table already held rows and the load went
	// through a staging table instead of a direct COPY.
	Merged bool
}

// Load writes rows into t in one transaction, replacing rows whose key is
// already present. The table is locked against concurrent loads. An empty
// table receives the rows by a direct COPY; a populated one gets them staged
// in a temp table and merged with INSERT ... ON CONFLICT.
func Load(ctx context.Context, pool Pool, t Table, rows [][]any) (LoadResult, error) {
	if len(rows) == 0 {
		return LoadResult{}, nil
	}
	if t.Name == "" || len(t.Columns) == 0 {
		return LoadResult{}, eris.New("db: load: table name and columns are required")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return LoadResult{}, eris.Wrapf(err, "db: load %s: begin tx", t.Name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	target := pgx.Identifier{t.Name}.Sanitize()
	if _, err := tx.Exec(ctx, "LOCK TABLE "+target+" IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return LoadResult{}, eris.Wrapf(err, "db: load %s: lock", t.Name)
	}

	var populated bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+target+")").Scan(&populated); err != nil {
		return LoadResult{}, eris.Wrapf(err, "db: load %s: check rows", t.Name)
	}

	res := LoadResult{Merged: populated}
	if populated {
		res.Rows, err = merge(ctx, tx, t, rows)
	} else {
		res.Rows, err = CopyFrom(ctx, tx, t.Name, t.Columns, rows)
	}
	if err != nil {
		return LoadResult{}, eris.Wrapf(err, "db: load %s", t.Name)
	}

	if err := tx.Commit(ctx); err != nil {
		return LoadResult{}, eris.Wrapf(err, "db: load %s: commit", t.Name)
	}
	return res, nil
}

func merge(ctx context.Context, tx pgx.Tx, t Table, rows [][]any) (int64, error) {
	stageName := "_stage_" + t.Name
	stage := pgx.Identifier{stageName}.Sanitize()
	target := pgx.Identifier{t.Name}.Sanitize()

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stage, target,
	)); err != nil {
		return 0, eris.Wrap(err, "create staging table")
	}
	if _, err := CopyFrom(ctx, tx, stageName, t.Columns, rows); err != nil {
		return 0, err
	}

	cols := quoteAndJoin(t.Columns)
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, stage, pgx.Identifier{t.Columns[0]}.Sanitize(), conflictAction(t.Columns[1:]),
	))
	if err != nil {
		return 0, eris.Wrap(err, "merge staged rows")
	}
	return tag.RowsAffected(), nil
}

// conflictAction overwrites every non-key column with the incoming value.
func conflictAction(cols []string) string {
	if len(cols) == 0 {
		return "DO NOTHING"
	}
	set := make([]string, len(cols))
	for i, c := range cols {
		q := pgx.Identifier{c}.Sanitize()
		set[i] = q + " = EXCLUDED." + q
	}
	return "DO UPDATE SET " + strings.Join(set, ", ")
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
