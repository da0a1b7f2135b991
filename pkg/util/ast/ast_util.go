package ast

import (
	"hash/crc32"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/format"
	driver "github.com/pingcap/tidb/types/parser_driver"
)

const (
	StmtNameUnknown  = "unknown"
	StmtNameSelect   = "select"
	StmtNameInsert   = "insert"
	StmtNameUpdate   = "update"
	StmtNameDelete   = "delete"
	StmtNameDDL      = "ddl"
	StmtNameBegin    = "begin"
	StmtNameCommit   = "commit"
	StmtNameRollback = "rollback"
	StmtNameSet      = "set"
	StmtNameShow     = "show"
	StmtNameUse      = "use"
	StmtNameExplain  = "explain"
)

// StmtInfo is what the router wants to know about a statement before running it.
type StmtInfo struct {
	TypeName string
	Table    string
	IsDDL    bool
	Digest   uint32
}

var ddlRoutines = []string{"alt", "cre", "ren", "dro", "tru"}

// InspectSQL never fails: statements the parser rejects are described by a
// keyword scan instead.
func InspectSQL(sql string) StmtInfo {
	stmt, err := parser.New().ParseOneStmt(sql, "", "")
	if err != nil {
		return StmtInfo{
			TypeName: StmtNameUnknown,
			IsDDL:    isDDLByKeyword(sql),
			Digest:   crc32.ChecksumIEEE([]byte(sql)),
		}
	}

	info := StmtInfo{
		TypeName: StmtTypeName(stmt),
		Table:    ExtractFirstTableNameFromStmt(stmt),
		IsDDL:    isDDLNode(stmt, sql),
	}
	if v, err := ExtractAstVisit(stmt); err == nil {
		info.Digest = crc32.ChecksumIEEE([]byte(v.SqlFeature()))
	} else {
		info.Digest = crc32.ChecksumIEEE([]byte(sql))
	}
	return info
}

// SplitStatements breaks a multi statement string into single statements,
// keeping the original text of each one.
func SplitStatements(sql string) ([]string, error) {
	stmts, _, err := parser.New().Parse(sql, "", "")
	if err != nil {
		return nil, errors.WithMessage(err, "parse statements error")
	}

	ret := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		text := strings.TrimSpace(stmt.Text())
		if text == "" {
			if text, err = restoreSQL(stmt); err != nil {
				return nil, err
			}
		}
		ret = append(ret, strings.TrimRight(text, "; \t\n"))
	}
	return ret, nil
}

var keywordTypeNames = map[string]string{
	"select":   StmtNameSelect,
	"insert":   StmtNameInsert,
	"replace":  StmtNameInsert,
	"update":   StmtNameUpdate,
	"delete":   StmtNameDelete,
	"alter":    StmtNameDDL,
	"create":   StmtNameDDL,
	"rename":   StmtNameDDL,
	"drop":     StmtNameDDL,
	"truncate": StmtNameDDL,
	"begin":    StmtNameBegin,
	"start":    StmtNameBegin,
	"commit":   StmtNameCommit,
	"rollback": StmtNameRollback,
	"set":      StmtNameSet,
	"show":     StmtNameShow,
	"use":      StmtNameUse,
	"explain":  StmtNameExplain,
	"describe": StmtNameExplain,
	"desc":     StmtNameExplain,
}

// KeywordTypeName labels a statement by its first keyword without parsing it.
func KeywordTypeName(sql string) string {
	sql = strings.TrimLeft(sql, " \t\r\n(")
	end := strings.IndexFunc(sql, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		sql = sql[:end]
	}
	if name, ok := keywordTypeNames[strings.ToLower(sql)]; ok {
		return name
	}
	return StmtNameUnknown
}

func StmtTypeName(stmt ast.StmtNode) string {
	if _, ok := stmt.(ast.DDLNode); ok {
		return StmtNameDDL
	}
	switch stmt.(type) {
	case *ast.SelectStmt, *ast.UnionStmt:
		return StmtNameSelect
	case *ast.InsertStmt:
		return StmtNameInsert
	case *ast.UpdateStmt:
		return StmtNameUpdate
	case *ast.DeleteStmt:
		return StmtNameDelete
	case *ast.BeginStmt:
		return StmtNameBegin
	case *ast.CommitStmt:
		return StmtNameCommit
	case *ast.RollbackStmt:
		return StmtNameRollback
	case *ast.SetStmt:
		return StmtNameSet
	case *ast.ShowStmt:
		return StmtNameShow
	case *ast.UseStmt:
		return StmtNameUse
	case *ast.ExplainStmt:
		return StmtNameExplain
	default:
		return StmtNameUnknown
	}
}

// temporary tables are allowed inside transactions
func isDDLNode(stmt ast.StmtNode, sql string) bool {
	if _, ok := stmt.(ast.DDLNode); !ok {
		return false
	}
	return !isTemporary(sql)
}

func isDDLByKeyword(sql string) bool {
	words := strings.Fields(sql)
	if len(words) == 0 {
		return false
	}
	first := strings.ToLower(words[0])
	if len(first) > 3 {
		first = first[:3]
	}
	for _, r := range ddlRoutines {
		if first == r {
			return !isTemporary(sql)
		}
	}
	return false
}

func isTemporary(sql string) bool {
	words := strings.Fields(sql)
	return len(words) > 1 && strings.EqualFold(words[1], "temporary")
}

func restoreSQL(stmt ast.StmtNode) (string, error) {
	sb := &strings.Builder{}
	if err := stmt.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, sb)); err != nil {
		return "", errors.WithMessage(err, "restore statement error")
	}
	return sb.String(), nil
}

type FirstTableNameVisitor struct {
	table string
	found bool
}

func (f *FirstTableNameVisitor) Enter(n ast.Node) (node ast.Node, skipChildren bool) {
	switch nn := n.(type) {
	case *ast.TableName:
		f.table = nn.Name.String()
		f.found = true
		return n, true
	}
	return n, false
}

func (f *FirstTableNameVisitor) Leave(n ast.Node) (node ast.Node, ok bool) {
	return n, !f.found
}

func (f *FirstTableNameVisitor) TableName() string {
	return f.table
}

func ExtractFirstTableNameFromStmt(stmt ast.StmtNode) string {
	visitor := &FirstTableNameVisitor{}
	stmt.Accept(visitor)
	return visitor.table
}

// AstVisitor replaces literal values with placeholders so that statements
// differing only in their values share one feature string.
type AstVisitor struct {
	sqlFeature string
}

func ExtractAstVisit(stmt ast.StmtNode) (*AstVisitor, error) {
	visitor := &AstVisitor{}

	stmt.Accept(visitor)

	sb := strings.Builder{}
	if err := stmt.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return nil, err
	}
	visitor.sqlFeature = sb.String()

	return visitor, nil
}

func (f *AstVisitor) Enter(n ast.Node) (node ast.Node, skipChildren bool) {
	switch nn := n.(type) {
	case *ast.PatternInExpr:
		if len(nn.List) == 0 {
			return nn, false
		}
		if _, ok := nn.List[0].(*driver.ValueExpr); ok {
			nn.List = nn.List[:1]
		}
	case *driver.ValueExpr:
		nn.SetValue("?")
	}
	return n, false
}

func (f *AstVisitor) Leave(n ast.Node) (node ast.Node, ok bool) {
	return n, true
}

func (f *AstVisitor) SqlFeature() string {
	return f.sqlFeature
}
