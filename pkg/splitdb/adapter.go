package splitdb

import (
	"context"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/backend"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/executor"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/txn"
	"github.com/pingcap/tidb/util/logutil"
	"github.com/siddontang/go-mysql/mysql"
	"github.com/siddontang/go/sync2"
	"go.uber.org/zap"
)

// Adapter routes statements between the write and the read-only connection
// of one database client. An Adapter must be used by one goroutine at a time.
type Adapter struct {
	conns  *backend.ConnManager
	txn    *txn.Controller
	exec   *executor.Executor
	closed sync2.AtomicBool
}

func NewAdapter(source profile.ConnectionSource, cfg config.Router, stats driver.StatsLogger) *Adapter {
	conns := backend.NewConnManager(profile.NewResolver(source), stats, cfg.CaseFolding)
	controller := txn.NewController(conns, stats)
	return &Adapter{
		conns: conns,
		txn:   controller,
		exec:  executor.NewExecutor(conns, controller, stats),
	}
}

// Query runs stmt on the connection its text classifies to.
func (a *Adapter) Query(ctx context.Context, stmt role.Statement, bind *driver.Bind) (*mysql.Result, error) {
	return a.QueryRole(ctx, stmt, bind, role.Default)
}

// QueryRole runs stmt on the connection named by r. role.Default classifies
// the statement. An open transaction always wins.
func (a *Adapter) QueryRole(ctx context.Context, stmt role.Statement, bind *driver.Bind, r role.Role) (*mysql.Result, error) {
	if a.closed.Get() {
		return nil, ErrAdapterClosed
	}
	return a.exec.Execute(ctx, stmt, bind, r)
}

// Insert adds one row and returns the number of affected rows.
func (a *Adapter) Insert(ctx context.Context, table string, row map[string]interface{}) (uint64, error) {
	sql, bind, err := buildInsert(table, row)
	if err != nil {
		return 0, err
	}
	res, err := a.QueryRole(ctx, role.Text(sql), bind, role.Write)
	if err != nil {
		return 0, err
	}
	return res.AffectedRows, nil
}

// Delete removes the rows matching every condition in where and returns the
// number of affected rows. No condition deletes every row.
func (a *Adapter) Delete(ctx context.Context, table string, where ...string) (uint64, error) {
	sql, err := buildDelete(table, where)
	if err != nil {
		return 0, err
	}
	res, err := a.QueryRole(ctx, role.Text(sql), nil, role.Write)
	if err != nil {
		return 0, err
	}
	return res.AffectedRows, nil
}

// UpdateFromSelect binds the write connection and renders the UPDATE of
// table built from sel. The statement is returned, not executed.
func (a *Adapter) UpdateFromSelect(ctx context.Context, sel *Select, table, alias string) (string, error) {
	if err := a.Connect(ctx, role.Write); err != nil {
		return "", err
	}
	return buildUpdateFromSelect(sel, table, alias)
}

func (a *Adapter) BeginTransaction(ctx context.Context) error {
	if a.closed.Get() {
		return ErrAdapterClosed
	}
	return a.txn.Begin(ctx)
}

func (a *Adapter) Commit(ctx context.Context) error {
	if a.closed.Get() {
		return ErrAdapterClosed
	}
	return a.txn.Commit(ctx)
}

func (a *Adapter) Rollback(ctx context.Context) error {
	if a.closed.Get() {
		return ErrAdapterClosed
	}
	return a.txn.Rollback(ctx)
}

// Connect binds the default connection to r. Inside a transaction the
// write connection stays bound.
func (a *Adapter) Connect(ctx context.Context, r role.Role) error {
	if a.closed.Get() {
		return ErrAdapterClosed
	}
	if a.txn.InTransaction() || r != role.Read {
		r = role.Write
	}
	_, err := a.conns.Ensure(ctx, r)
	return err
}

// Connection returns the dedicated connection for r in a split deployment,
// or the only connection otherwise. Inside a transaction it returns the
// default connection that runs the transaction, whatever r is.
func (a *Adapter) Connection(ctx context.Context, r role.Role) (driver.Conn, error) {
	if a.closed.Get() {
		return nil, ErrAdapterClosed
	}
	if a.txn.InTransaction() {
		return a.conns.Ensure(ctx, role.Write)
	}
	return a.conns.Conn(ctx, r)
}

func (a *Adapter) IsUsingReadConnection() bool {
	return a.conns.IsUsingReadConnection()
}

func (a *Adapter) IsUsingWriteConnection() bool {
	return a.conns.IsUsingWriteConnection()
}

func (a *Adapter) TransactionLevel() int {
	return a.txn.Level()
}

// CloseConnection drops the default connection. The next statement reconnects.
func (a *Adapter) CloseConnection() {
	a.conns.CloseConnection()
}

func (a *Adapter) Close() {
	if a.closed.Get() {
		return
	}
	a.closed.Set(true)
	if a.txn.InTransaction() {
		logutil.BgLogger().Warn("close adapter with open transaction", zap.Int("level", a.txn.Level()))
	}
	a.conns.Close()
}
