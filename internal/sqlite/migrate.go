package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/random"
)

// migrate synchronizes the database schema with the target schema from
// schema.sql using a declarative migration:
//
//  1. drop tables missing from the target schema,
//  2. create tables missing from the database,
//  3. rebuild changed tables with the 12-step procedure from
//     https://www.sqlite.org/lang_altertable.html#otheralter.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrate(ctx context.Context, schemaDefinition string) error {
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	defer func() {
		if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "could not re-enable foreign key validation",
				errors.SlogError(err))
		}
	}()

	// Materialize the target schema in a throwaway in-memory database and
	// attach it so both schemas can be compared with plain SQL.
	randomID, err := random.Letters(20)
	if err != nil {
		return errors.Wrap(err, "generate target schema database name")
	}
	targetName := fmt.Sprintf("file:%s?mode=memory&cache=shared", randomID)
	target, err := sql.Open("sqlite3", targetName)
	if err != nil {
		return errors.Wrap(err, "open target schema database")
	}
	defer func() {
		_ = target.Close()
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "execute target schema")
	}

	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "could not roll back migration",
				errors.SlogError(rollbackErr))
		}
	}()

	if _, err = tx.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", targetName); err != nil {
		return errors.Wrap(err, "attach target schema database")
	}
	defer func() {
		if _, detachErr := tx.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelDebug, "could not detach target schema database")
		}
	}()

	if err = db.syncTables(ctx, tx); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit migration")
	}
	return nil
}

func (db *Database) syncTables(ctx context.Context, tx *sql.Tx) error {
	deleted, err := queryStrings(ctx, tx, `SELECT current.name
FROM sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND target.type IS NULL AND current.name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deleted {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table)); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table))
		}
	}

	created, err := queryStrings(ctx, tx, `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = 'table' AND current.type IS NULL AND target.name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, createSQL := range created {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return errors.Wrap(err, "create table")
		}
	}

	return db.rebuildChangedTables(ctx, tx)
}

// rebuildChangedTables recreates every table whose definition differs from
// the target schema, copying the columns both versions share.
func (db *Database) rebuildChangedTables(ctx context.Context, tx *sql.Tx) error {
	type changedTable struct {
		name   string
		newSQL string
	}
	var changed []changedTable

	rows, err := tx.QueryContext(ctx, `SELECT current.name, target.sql
FROM sqlite_schema AS current
JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`)
	if err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var table changedTable
		if err = rows.Scan(&table.name, &table.newSQL); err != nil {
			return errors.Wrap(err, "scan changed table")
		}
		changed = append(changed, table)
	}
	if err = rows.Err(); err != nil {
		return errors.Wrap(err, "iterate changed tables")
	}

	for _, table := range changed {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table", slog.String("table", table.name))

		tempName := table.name + "_migration_temp"
		tempSQL := strings.Replace(table.newSQL, table.name, tempName, 1)
		if _, err = tx.ExecContext(ctx, tempSQL); err != nil {
			return errors.Wrap(err, "create replacement table", slog.String("query", tempSQL))
		}

		// Column names are quoted in case one of them is an SQLite keyword.
		common, err := queryStrings(ctx, tx, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS current
JOIN PRAGMA_TABLE_INFO(:table_name, 'schemaTarget') AS target ON target.name = current.name`,
			sql.Named("table_name", table.name))
		if err != nil {
			return errors.Wrap(err, "query common columns")
		}
		columns := strings.Join(common, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tempName, columns, columns, table.name)
		if _, err = tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy rows", slog.String("query", copySQL))
		}

		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table.name)); err != nil {
			return errors.Wrap(err, "drop old table")
		}
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s RENAME TO %q", tempName, table.name)); err != nil {
			return errors.Wrap(err, "rename replacement table")
		}
	}
	return nil
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []string
	for rows.Next() {
		var result string
		if err = rows.Scan(&result); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return results, nil
}
