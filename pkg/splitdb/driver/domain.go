package driver

import (
	"context"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/siddontang/go-mysql/mysql"
)

// Session options understood by every Conn.
const (
	OptionMultiStatements = "multi_statements"
	OptionErrMode         = "errmode"
	OptionCaseFolding     = "case"
	OptionBufferedQuery   = "use_buffered_query"
)

const (
	ErrModeException = "exception"

	CaseNatural = "natural"
	CaseLower   = "lower"
	CaseUpper   = "upper"
)

type Driver interface {
	Open(ctx context.Context, p *profile.Profile) (Conn, error)
}

type Conn interface {
	Close() error
	Ping() error
	SetOption(key string, value interface{}) error
	Execute(command string, args ...interface{}) (*mysql.Result, error)
	Prepare(query string) (Stmt, error)
	Begin() error
	Commit() error
	Rollback() error
}

type Stmt interface {
	Execute(args ...interface{}) (*mysql.Result, error)
	Close() error
}

// StatsLogger receives timing and outcome events. Implementations must not
// retain bind or result after returning.
type StatsLogger interface {
	LogConnect(p *profile.Profile, r role.Role, d time.Duration, err error)
	LogQuery(sql string, bind *Bind, r role.Role, d time.Duration, res *mysql.Result, err error)
	LogTransaction(op string, d time.Duration, err error)
}

type nopStatsLogger struct{}

func (nopStatsLogger) LogConnect(*profile.Profile, role.Role, time.Duration, error) {}
func (nopStatsLogger) LogQuery(string, *Bind, role.Role, time.Duration, *mysql.Result, error) {
}
func (nopStatsLogger) LogTransaction(string, time.Duration, error) {}

// NopStatsLogger drops every event.
var NopStatsLogger StatsLogger = nopStatsLogger{}
