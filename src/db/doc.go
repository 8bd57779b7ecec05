/*
This package contains lowish-level APIs for querying the journal database. It
maps query results to Go types while still letting you write plain SQL.

Arguments use $1, $2, etc. and are passed straight through to pgx.

	titles, err := db.Query[string](ctx, conn,
		`
		SELECT title
		FROM section_submission
		WHERE course_id = $1 AND NOT success
		`,
		courseID,
	)

To query several columns at once, use a struct with `db:"column_name"` tags
and the special $columns placeholder:

	attempts, err := db.Query[models.CreationAttempt](ctx, conn, `
		SELECT $columns FROM creation_attempt WHERE status = $1
	`, models.CreationAborted)
	// SELECT id, title, creator, ... FROM creation_attempt ...

$columns{prefix} adds a table prefix to every column, for joins.

Queries can name themselves with a "---- Name" comment line; the name shows
up in perf reports.
*/
package db
