package db

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

var ErrNotConfigured = errors.New("no journal database is configured")

/*
Performs a SQL query and returns a slice of all the result rows. The query is just plain SQL, but make sure to read the package documentation for details. You must explicitly provide the type argument - this is how it knows what Go type to map the results to, and it cannot be inferred.

Struct types are filled by column name using their `db` tags, and a $columns
placeholder in the query expands to those column names. Any other type must
be a single-column query.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	query, isStruct := compileQuery[T](query)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.New(err, "failed to execute query")
	}

	var result []T
	if isStruct {
		result, err = pgx.CollectRows(rows, pgx.RowToStructByName[T])
	} else {
		result, err = pgx.CollectRows(rows, pgx.RowTo[T])
	}
	if err != nil {
		return nil, oops.New(err, "failed to read query results")
	}
	return result, nil
}

/*
Performs a SQL query and returns the first row of the results. If there are no
results, NotFound is returned.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	query, isStruct := compileQuery[T](query)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.New(err, "failed to execute query")
	}

	var result T
	if isStruct {
		result, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	} else {
		result, err = pgx.CollectOneRow(rows, pgx.RowTo[T])
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to read query result")
	}
	return &result, nil
}

// Types that are scanned as a single value even though they are structs or
// arrays under the hood.
var scalarTypes = []reflect.Type{
	reflect.TypeOf(time.Time{}),
	reflect.TypeOf(uuid.UUID{}),
}

func isStructDest(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for _, s := range scalarTypes {
		if t == s {
			return false
		}
	}
	return true
}

func compileQuery[T any](query string) (string, bool) {
	destType := reflect.TypeOf((*T)(nil)).Elem()
	if !isStructDest(destType) {
		return query, false
	}
	if strings.Contains(query, "$columns") {
		query = expandColumns(query, ColumnNames(destType))
	}
	return query, true
}

// ColumnNames lists the columns a struct is filled from, in field order. This
// follows pgx's rules: the `db` tag if there is one, the field name if not,
// and `db:"-"` to skip a field.
func ColumnNames(t reflect.Type) []string {
	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, ok := f.Tag.Lookup("db")
		if !ok {
			name = f.Name
		}
		if name != "-" {
			names = append(names, name)
		}
	}
	return names
}

// expandColumns replaces $columns and $columns{prefix} with a column list.
func expandColumns(query string, names []string) string {
	for {
		idx := strings.Index(query, "$columns")
		if idx < 0 {
			return query
		}
		end := idx + len("$columns")
		prefix := ""
		if end < len(query) && query[end] == '{' {
			if closing := strings.IndexByte(query[end:], '}'); closing >= 0 {
				prefix = query[end+1 : end+closing]
				end += closing + 1
			}
		}

		cols := make([]string, len(names))
		for i, name := range names {
			if prefix != "" {
				cols[i] = prefix + "." + name
			} else {
				cols[i] = name
			}
		}
		query = query[:idx] + strings.Join(cols, ", ") + query[end:]
	}
}
