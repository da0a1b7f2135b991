package splitdb

import (
	"sort"
	"strings"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/pingcap/errors"
)

var (
	ErrEmptyInsert     = errors.New("no columns to insert")
	ErrNoUpdateColumns = errors.New("the columns for UPDATE statement are not defined")
	ErrEmptyTableName  = errors.New("table name is empty")
	ErrAdapterClosed   = errors.New("adapter is closed")
)

// Expr is raw SQL that is inlined instead of bound.
type Expr string

func (e Expr) String() string {
	return string(e)
}

// QuoteIdentifier quotes every dot separated part of name with backticks.
func QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quotePart(p)
	}
	return strings.Join(parts, ".")
}

func quotePart(p string) string {
	if p == "*" {
		return p
	}
	return "`" + strings.Replace(p, "`", "``", -1) + "`"
}

// QuoteTableAs renders "`name` AS `alias`", dropping the alias when it
// repeats the table name.
func QuoteTableAs(name, alias string) string {
	quoted := QuoteIdentifier(name)
	if alias == "" || alias == name || strings.HasSuffix(name, "."+alias) {
		return quoted
	}
	return quoted + " AS " + quotePart(alias)
}

// buildInsert renders an INSERT for row. Expr values are inlined, all other
// values are bound positionally. Columns are sorted by name.
func buildInsert(table string, row map[string]interface{}) (string, *driver.Bind, error) {
	if table == "" {
		return "", nil, ErrEmptyTableName
	}
	if len(row) == 0 {
		return "", nil, ErrEmptyInsert
	}

	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols))
	values := make([]string, 0, len(cols))
	var args []interface{}
	for _, col := range cols {
		quoted = append(quoted, QuoteIdentifier(col))
		if expr, ok := row[col].(Expr); ok {
			values = append(values, string(expr))
			continue
		}
		values = append(values, "?")
		args = append(args, row[col])
	}

	sql := "INSERT INTO " + QuoteIdentifier(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(values, ", ") + ")"
	return sql, driver.Positional(args...), nil
}

// buildDelete renders a DELETE whose conditions are joined with AND.
func buildDelete(table string, where []string) (string, error) {
	if table == "" {
		return "", ErrEmptyTableName
	}
	sql := "DELETE FROM " + QuoteIdentifier(table)
	if cond := whereExpr(where); cond != "" {
		sql += " WHERE " + cond
	}
	return sql, nil
}

func whereExpr(where []string) string {
	var parts []string
	for _, w := range where {
		if w = strings.TrimSpace(w); w != "" {
			parts = append(parts, "("+w+")")
		}
	}
	return strings.Join(parts, " AND ")
}

// buildUpdateFromSelect turns the FROM, columns and WHERE parts of sel into
// a multi table UPDATE of table. Column aliases name the updated columns.
func buildUpdateFromSelect(sel *Select, table, alias string) (string, error) {
	if table == "" {
		return "", ErrEmptyTableName
	}
	if alias == "" {
		alias = table
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(QuoteTableAs(table, alias))

	for _, f := range sel.from {
		joinType := f.joinType
		if joinType == joinFrom {
			joinType = JoinInner
		}
		sb.WriteString("\n ")
		sb.WriteString(strings.ToUpper(string(joinType)))
		sb.WriteString(" ")
		sb.WriteString(QuoteTableAs(f.table, f.correlation))
		if f.cond != "" {
			sb.WriteString(" ON ")
			sb.WriteString(f.cond)
		}
	}

	if len(sel.columns) == 0 {
		return "", ErrNoUpdateColumns
	}
	sets := make([]string, 0, len(sel.columns))
	for _, c := range sel.columns {
		target := c.alias
		if target == "" {
			target = c.name
		}
		value := string(c.expr)
		if c.expr == "" {
			value = QuoteIdentifier(c.name)
			if c.correlation != "" {
				value = quotePart(c.correlation) + "." + quotePart(c.name)
			}
		}
		sets = append(sets, quotePart(alias)+"."+quotePart(target)+" = "+value)
	}
	sb.WriteString("\nSET ")
	sb.WriteString(strings.Join(sets, ", "))

	if len(sel.where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(sel.where, " "))
	}
	return sb.String(), nil
}
