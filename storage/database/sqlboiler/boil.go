package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/strmangle"

	"github.com/syaifulazham/techlympics/core"
)

// dialect is the postgres dialect sqlboiler's generated models use.
var dialect = drivers.Dialect{
	LQ:                   '"',
	RQ:                   '"',
	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

// repo is embedded by every repository: it holds the default executor.
type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

// newQuery builds a query from mods, the way generated models do.
func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

// count runs a COUNT(*) of the query built from mods, which must not order nor paginate.
func count(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (int, error) {
	q := newQuery(mods...)
	queries.SetSelect(q, nil)
	queries.SetCount(q)

	var n int64
	if err := q.QueryRowContext(ctx, exec).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// one binds the first row of the query to dst; sql.ErrNoRows when there is none.
func one(ctx context.Context, exec core.DBExecutor, dst interface{}, mods ...qm.QueryMod) error {
	q := newQuery(append(mods, qm.Limit(1))...)
	err := q.Bind(ctx, exec, dst)
	if errors.Cause(err) == sql.ErrNoRows {
		return sql.ErrNoRows
	}
	return err
}

func all(ctx context.Context, exec core.DBExecutor, dst interface{}, mods ...qm.QueryMod) error {
	return newQuery(mods...).Bind(ctx, exec, dst)
}

func quote(ident string) string {
	return strmangle.IdentQuote(dialect.LQ, dialect.RQ, ident)
}

// insertQuery returns an INSERT of cols into table, returning ret.
func insertQuery(table string, cols []string, ret ...string) string {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table),
		strings.Join(strmangle.IdentQuoteSlice(dialect.LQ, dialect.RQ, cols), ","),
		strmangle.Placeholders(dialect.UseIndexPlaceholders, len(cols), 1, 1),
	)
	if len(ret) > 0 {
		q += " RETURNING " + strings.Join(strmangle.IdentQuoteSlice(dialect.LQ, dialect.RQ, ret), ",")
	}
	return q
}

// updateQuery returns an UPDATE of cols of table, for the row whose key is the last argument.
func updateQuery(table string, cols []string, key string) string {
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s=$%d",
		quote(table),
		strmangle.SetParamNames(string(dialect.LQ), string(dialect.RQ), 1, cols),
		quote(key),
		len(cols)+1,
	)
}

func orderBy(ordering []core.DBOrdering, allowed map[string]string, def string) qm.QueryMod {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(clauses) == 0 {
		return qm.OrderBy(def)
	}
	return qm.OrderBy(strings.Join(clauses, ", "))
}

func paginate(page core.Pagination) []qm.QueryMod {
	return []qm.QueryMod{qm.Limit(page.PageSize), qm.Offset(page.Offset())}
}

func intArgs(ids []int) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func stringArgs(vals []string) []interface{} {
	args := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		args = append(args, v)
	}
	return args
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

// checkAffected maps an UPDATE or DELETE that touched nothing to notFound.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
