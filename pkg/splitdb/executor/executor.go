package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/metrics"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/ast"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/tidb/util/logutil"
	"github.com/siddontang/go-mysql/mysql"
	"go.uber.org/zap"
)

// FailpointConnectionLost makes an attempt fail with the server error code
// given as the failpoint value.
const FailpointConnectionLost = "github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/executor/connectionLost"

type ConnManager interface {
	Ensure(ctx context.Context, r role.Role) (driver.Conn, error)
	CloseConnection()
}

type TxnState interface {
	InTransaction() bool
}

// Binder is implemented by statements that carry their own parameters.
type Binder interface {
	Bind() *driver.Bind
}

type Executor struct {
	conns  ConnManager
	txn    TxnState
	stats  driver.StatsLogger
	policy RetryPolicy
}

func NewExecutor(conns ConnManager, txn TxnState, stats driver.StatsLogger) *Executor {
	if stats == nil {
		stats = driver.NopStatsLogger
	}
	return &Executor{
		conns:  conns,
		txn:    txn,
		stats:  stats,
		policy: DefaultRetryPolicy(),
	}
}

func (e *Executor) WithRetryPolicy(policy RetryPolicy) *Executor {
	e.policy = policy
	return e
}

// Role returns the role stmt runs on. An open transaction pins every
// statement to Write.
func (e *Executor) Role(stmt role.Statement, directive role.Role) role.Role {
	if e.txn != nil && e.txn.InTransaction() {
		return role.Write
	}
	return role.Classify(stmt, directive)
}

// Execute runs stmt, reconnecting and retrying while the connection is lost.
func (e *Executor) Execute(ctx context.Context, stmt role.Statement, bind *driver.Bind, directive role.Role) (*mysql.Result, error) {
	if bind.IsEmpty() {
		if b, ok := stmt.(Binder); ok {
			bind = b.Bind()
		}
	}
	bind = bind.Normalize()
	sql := stmt.SQL()

	r := e.Role(stmt, directive)
	conn, err := e.conns.Ensure(ctx, r)
	if err != nil {
		return nil, e.fail(ctx, sql, bind, r, 0, 0, err)
	}

	for retries := 0; ; retries++ {
		start := time.Now()
		res, err := e.attempt(ctx, conn, sql, bind, r, retries)
		if err == nil {
			e.stats.LogQuery(sql, bind, r, time.Since(start), res, nil)
			return res, nil
		}

		if !e.policy.ShouldRetry(retries, err) {
			return nil, e.fail(ctx, sql, bind, r, retries, time.Since(start), err)
		}

		metrics.RetryCounter.WithLabelValues(r.String()).Inc()
		logutil.Logger(ctx).Debug("connection lost, reconnecting", zap.String("role", r.String()),
			zap.Int("retries", retries+1), zap.Error(err))
		e.conns.CloseConnection()
		r = e.Role(stmt, directive)
		if conn, err = e.conns.Ensure(ctx, r); err != nil {
			return nil, e.fail(ctx, sql, bind, r, retries+1, 0, err)
		}
	}
}

func (e *Executor) attempt(ctx context.Context, conn driver.Conn, sql string, bind *driver.Bind, r role.Role, retries int) (*mysql.Result, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "splitdb.execute")
	span.SetTag("role", r.String())
	span.SetTag("attempt", retries+1)
	defer span.Finish()

	res, err := e.run(conn, sql, bind)
	if err != nil {
		span.SetTag("error", true)
	}
	return res, err
}

func (e *Executor) run(conn driver.Conn, sql string, bind *driver.Bind) (*mysql.Result, error) {
	if e.txn != nil && e.txn.InTransaction() && ast.InspectSQL(sql).IsDDL {
		return nil, driver.ErrDDLInTransaction
	}

	if v, err := failpoint.Eval(FailpointConnectionLost); err == nil {
		code, _ := strconv.Atoi(fmt.Sprintf("%v", v))
		return nil, mysql.NewError(uint16(code), "injected connection failure")
	}

	query, args, err := bind.Expand(sql)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return conn.Execute(query)
	}

	stmt, err := conn.Prepare(query)
	if err != nil {
		return nil, errors.WithMessage(err, "prepare statement error")
	}
	defer stmt.Close()
	return stmt.Execute(args...)
}

func (e *Executor) fail(ctx context.Context, sql string, bind *driver.Bind, r role.Role, retries int, d time.Duration, err error) error {
	err = driver.MapError(err)
	kind := driver.KindOf(err)
	metrics.ErrorCounter.WithLabelValues(kind.String()).Inc()
	e.stats.LogQuery(sql, bind, r, d, nil, err)
	logutil.Logger(ctx).Error("execute statement error", zap.String("sql", sql),
		zap.Any("args", bind.Args), zap.Any("named", bind.Named), zap.String("role", r.String()),
		zap.Int("retries", retries), zap.String("kind", kind.String()), zap.Error(err))
	return err
}
