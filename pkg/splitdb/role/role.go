package role

import "strings"

// Role names a connection slot. Passed as a routing directive, Default means
// the statement should be classified.
type Role int

const (
	Default Role = iota
	Read
	Write
)

func (r Role) String() string {
	switch r {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "default"
	}
}

// Parse maps a directive string to a Role. Unknown strings are Default.
func Parse(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read
	case "write":
		return Write
	default:
		return Default
	}
}

// Statement is anything that can render itself as SQL text.
type Statement interface {
	SQL() string
}

// ReadStatement is implemented by structured queries that know they only read.
type ReadStatement interface {
	Statement
	ReadOnly() bool
}

// Text is raw SQL.
type Text string

func (t Text) SQL() string {
	return string(t)
}

var writeMarkers = []string{"UPDATE", "INSERT", "DESCRIBE"}

const readMarker = "SELECT `"

// Classify picks the connection a statement should run on. A Read or Write
// directive always wins. Otherwise write markers anywhere in the text route
// to Write, and a SELECT followed by a quoted identifier or a read-only
// structured query routes to Read. Everything else goes to Write.
func Classify(stmt Statement, directive Role) Role {
	if directive == Read || directive == Write {
		return directive
	}

	sql := stmt.SQL()
	upper := strings.ToUpper(sql)
	for _, marker := range writeMarkers {
		if strings.Contains(upper, marker) {
			return Write
		}
	}

	if strings.Contains(upper, readMarker) {
		return Read
	}
	if rs, ok := stmt.(ReadStatement); ok && rs.ReadOnly() {
		return Read
	}
	return Write
}
