package splitdb

import (
	"strings"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
)

type JoinType string

const (
	joinFrom  JoinType = "from"
	JoinInner JoinType = "inner join"
	JoinLeft  JoinType = "left join"
	JoinRight JoinType = "right join"
)

type fromPart struct {
	correlation string
	table       string
	joinType    JoinType
	cond        string
}

type columnPart struct {
	correlation string
	name        string
	expr        Expr
	alias       string
}

// Select is a small structured read query. It always routes as a read
// unless its text carries a write marker.
type Select struct {
	from    []fromPart
	columns []columnPart
	where   []string
	bind    *driver.Bind
}

func NewSelect() *Select {
	return &Select{}
}

// From sets the main table. cols are column names of that table.
func (s *Select) From(table, alias string, cols ...string) *Select {
	return s.join(joinFrom, table, alias, "", cols)
}

func (s *Select) Join(table, alias, cond string, cols ...string) *Select {
	return s.join(JoinInner, table, alias, cond, cols)
}

func (s *Select) JoinLeft(table, alias, cond string, cols ...string) *Select {
	return s.join(JoinLeft, table, alias, cond, cols)
}

func (s *Select) join(joinType JoinType, table, alias, cond string, cols []string) *Select {
	if alias == "" {
		alias = table
	}
	s.from = append(s.from, fromPart{correlation: alias, table: table, joinType: joinType, cond: cond})
	for _, c := range cols {
		s.columns = append(s.columns, columnPart{correlation: alias, name: c})
	}
	return s
}

// Column adds a column of the table known as correlation under alias.
func (s *Select) Column(correlation, name, alias string) *Select {
	s.columns = append(s.columns, columnPart{correlation: correlation, name: name, alias: alias})
	return s
}

// ColumnExpr adds a raw expression under alias.
func (s *Select) ColumnExpr(expr Expr, alias string) *Select {
	s.columns = append(s.columns, columnPart{expr: expr, alias: alias})
	return s
}

func (s *Select) Where(cond string) *Select {
	return s.addWhere("AND", cond)
}

func (s *Select) OrWhere(cond string) *Select {
	return s.addWhere("OR", cond)
}

func (s *Select) addWhere(op, cond string) *Select {
	part := "(" + cond + ")"
	if len(s.where) > 0 {
		part = op + " " + part
	}
	s.where = append(s.where, part)
	return s
}

func (s *Select) SetBind(bind *driver.Bind) *Select {
	s.bind = bind
	return s
}

// Bind is used when a query passes no parameters of its own.
func (s *Select) Bind() *driver.Bind {
	return s.bind
}

func (s *Select) ReadOnly() bool {
	return true
}

func (s *Select) SQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	if len(s.columns) == 0 {
		sb.WriteString("*")
	}
	for i, c := range s.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch {
		case c.expr != "":
			sb.WriteString(string(c.expr))
		case c.correlation != "":
			sb.WriteString(quotePart(c.correlation) + "." + quotePart(c.name))
		default:
			sb.WriteString(QuoteIdentifier(c.name))
		}
		if c.alias != "" && c.alias != c.name {
			sb.WriteString(" AS ")
			sb.WriteString(quotePart(c.alias))
		}
	}

	for i, f := range s.from {
		if i == 0 || f.joinType == joinFrom {
			if i == 0 {
				sb.WriteString(" FROM ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(QuoteTableAs(f.table, f.correlation))
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(strings.ToUpper(string(f.joinType)))
		sb.WriteString(" ")
		sb.WriteString(QuoteTableAs(f.table, f.correlation))
		if f.cond != "" {
			sb.WriteString(" ON ")
			sb.WriteString(f.cond)
		}
	}

	if len(s.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(s.where, " "))
	}
	return sb.String()
}
