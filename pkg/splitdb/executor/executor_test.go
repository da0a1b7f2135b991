package executor

import (
	"context"
	"testing"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver/drivertest"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/siddontang/go-mysql/mysql"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeConns struct {
	conn       driver.Conn
	ensureErrs []error
	roles      []role.Role
	closed     int
}

func (f *fakeConns) Ensure(ctx context.Context, r role.Role) (driver.Conn, error) {
	f.roles = append(f.roles, r)
	if len(f.ensureErrs) > 0 {
		err := f.ensureErrs[0]
		f.ensureErrs = f.ensureErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.conn, nil
}

func (f *fakeConns) CloseConnection() {
	f.closed++
}

type fakeTxn bool

func (t *fakeTxn) InTransaction() bool {
	return bool(*t)
}

type boundSelect struct {
	sql  string
	bind *driver.Bind
}

func (b boundSelect) SQL() string        { return b.sql }
func (b boundSelect) ReadOnly() bool     { return true }
func (b boundSelect) Bind() *driver.Bind { return b.bind }

var (
	errServerGone = mysql.NewError(driver.CodeServerGone, "MySQL server has gone away")
	errLostConn   = mysql.NewError(driver.CodeLostConnection, "Lost connection to MySQL server during query")
	errDuplicate  = mysql.NewError(mysql.ER_DUP_ENTRY, "Duplicate entry 'a' for key 'name'")
)

type ExecutorTestSuite struct {
	suite.Suite

	ctx   context.Context
	conn  *drivertest.MockConn
	conns *fakeConns
	txn   fakeTxn
	stats *drivertest.MockStatsLogger
	exec  *Executor
}

func (s *ExecutorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.conn = new(drivertest.MockConn)
	s.conns = &fakeConns{conn: s.conn}
	s.txn = false
	s.stats = new(drivertest.MockStatsLogger)
	s.stats.On("LogQuery", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	s.exec = NewExecutor(s.conns, &s.txn, s.stats)
}

func (s *ExecutorTestSuite) TestRouting() {
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(&mysql.Result{}, nil)

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Default)
	require.NoError(s.T(), err)
	_, err = s.exec.Execute(s.ctx, role.Text("UPDATE `users` SET `name` = 'a'"), nil, role.Default)
	require.NoError(s.T(), err)
	_, err = s.exec.Execute(s.ctx, role.Text("UPDATE `users` SET `name` = 'a'"), nil, role.Read)
	require.NoError(s.T(), err)

	s.txn = true
	_, err = s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Read)
	require.NoError(s.T(), err)

	require.Equal(s.T(), []role.Role{role.Read, role.Write, role.Read, role.Write}, s.conns.roles)
}

func (s *ExecutorTestSuite) TestRetryThenSucceed() {
	want := &mysql.Result{AffectedRows: 1}
	s.conn.On("Execute", "DELETE FROM `users`", mock.Anything).Return(nil, errServerGone).Once()
	s.conn.On("Execute", "DELETE FROM `users`", mock.Anything).Return(nil, errors.Trace(errLostConn)).Once()
	s.conn.On("Execute", "DELETE FROM `users`", mock.Anything).Return(want, nil).Once()

	res, err := s.exec.Execute(s.ctx, role.Text("DELETE FROM `users`"), nil, role.Default)
	require.NoError(s.T(), err)
	require.Equal(s.T(), want, res)
	require.Equal(s.T(), 2, s.conns.closed)
	require.Len(s.T(), s.conns.roles, 3)
	s.stats.AssertNumberOfCalls(s.T(), "LogQuery", 1)
	s.stats.AssertCalled(s.T(), "LogQuery", "DELETE FROM `users`", mock.Anything, role.Write, mock.Anything, want, nil)
}

func (s *ExecutorTestSuite) TestRetryExhausted() {
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(nil, errLostConn)

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Default)
	require.Equal(s.T(), driver.KindConnectionLost, driver.KindOf(err))
	s.conn.AssertNumberOfCalls(s.T(), "Execute", MaxConnectionRetries+1)
	require.Equal(s.T(), MaxConnectionRetries, s.conns.closed)
	s.stats.AssertNumberOfCalls(s.T(), "LogQuery", 1)
}

func (s *ExecutorTestSuite) TestDuplicateNotRetried() {
	s.conn.On("Prepare", "INSERT INTO `users` (`name`) VALUES (?)").Return(s.newStmt([]interface{}{"a"}, nil, errDuplicate), nil).Once()

	_, err := s.exec.Execute(s.ctx, role.Text("INSERT INTO `users` (`name`) VALUES (?)"), driver.Positional("a"), role.Default)
	require.Equal(s.T(), driver.KindDuplicateEntry, driver.KindOf(err))
	require.Equal(s.T(), 0, s.conns.closed)
	s.conn.AssertExpectations(s.T())
	s.stats.AssertNumberOfCalls(s.T(), "LogQuery", 1)
}

func (s *ExecutorTestSuite) TestNamedBind() {
	want := &mysql.Result{}
	s.conn.On("Prepare", "SELECT `id` FROM `users` WHERE `name` = ? AND `store_id` = ?").
		Return(s.newStmt([]interface{}{"a", 1}, want, nil), nil).Once()

	bind := driver.Named(map[string]interface{}{"name": "a", ":store_id": 1})
	res, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users` WHERE `name` = :name AND `store_id` = :store_id"), bind, role.Default)
	require.NoError(s.T(), err)
	require.Equal(s.T(), want, res)
}

func (s *ExecutorTestSuite) TestStatementBind() {
	s.conn.On("Prepare", "SELECT main.id FROM sales_order AS main WHERE main.id = ?").
		Return(s.newStmt([]interface{}{10}, &mysql.Result{}, nil), nil).Once()

	sel := boundSelect{sql: "SELECT main.id FROM sales_order AS main WHERE main.id = :id", bind: driver.Named(map[string]interface{}{"id": 10})}
	_, err := s.exec.Execute(s.ctx, sel, nil, role.Default)
	require.NoError(s.T(), err)
	require.Equal(s.T(), []role.Role{role.Read}, s.conns.roles)
}

func (s *ExecutorTestSuite) TestDDLInTransaction() {
	s.txn = true
	_, err := s.exec.Execute(s.ctx, role.Text("ALTER TABLE `users` ADD COLUMN `age` INT"), nil, role.Default)
	require.Equal(s.T(), driver.ErrDDLInTransaction, err)
	s.conn.AssertNotCalled(s.T(), "Execute", mock.Anything, mock.Anything)

	s.conn.On("Execute", mock.Anything, mock.Anything).Return(&mysql.Result{}, nil).Once()
	_, err = s.exec.Execute(s.ctx, role.Text("CREATE TEMPORARY TABLE `tmp` (`id` INT)"), nil, role.Default)
	require.NoError(s.T(), err)

	s.txn = false
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(&mysql.Result{}, nil).Once()
	_, err = s.exec.Execute(s.ctx, role.Text("ALTER TABLE `users` ADD COLUMN `age` INT"), nil, role.Default)
	require.NoError(s.T(), err)
}

func (s *ExecutorTestSuite) TestConnectFailureNotRetried() {
	s.conns.ensureErrs = []error{errServerGone}

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Default)
	require.Equal(s.T(), driver.KindConnectionLost, driver.KindOf(err))
	require.Equal(s.T(), 0, s.conns.closed)
	s.conn.AssertNotCalled(s.T(), "Execute", mock.Anything, mock.Anything)
}

func (s *ExecutorTestSuite) TestReconnectFailure() {
	s.conns.ensureErrs = []error{nil, driver.NewError(driver.KindConfiguration, "resolve connection profiles error", nil)}
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(nil, errServerGone).Once()

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Default)
	require.Equal(s.T(), driver.KindConfiguration, driver.KindOf(err))
	require.Equal(s.T(), 1, s.conns.closed)
}

func (s *ExecutorTestSuite) TestCustomRetryPolicy() {
	s.exec.WithRetryPolicy(RetryPolicy{MaxRetries: 1, Retryable: driver.IsTransient})
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(nil, errServerGone)

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT 1"), nil, role.Default)
	require.Equal(s.T(), driver.KindConnectionLost, driver.KindOf(err))
	s.conn.AssertNumberOfCalls(s.T(), "Execute", 2)
}

func (s *ExecutorTestSuite) TestFailpointConnectionLost() {
	require.NoError(s.T(), failpoint.Enable(FailpointConnectionLost, "1*return(2006)"))
	defer func() {
		require.NoError(s.T(), failpoint.Disable(FailpointConnectionLost))
	}()
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(&mysql.Result{}, nil).Once()

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Default)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, s.conns.closed)
	s.conn.AssertNumberOfCalls(s.T(), "Execute", 1)
}

func (s *ExecutorTestSuite) TestTracingSpanPerAttempt() {
	tracer := mocktracer.New()
	origin := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(origin)

	s.conn.On("Execute", mock.Anything, mock.Anything).Return(nil, errServerGone).Once()
	s.conn.On("Execute", mock.Anything, mock.Anything).Return(&mysql.Result{}, nil).Once()

	_, err := s.exec.Execute(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Default)
	require.NoError(s.T(), err)

	spans := tracer.FinishedSpans()
	require.Len(s.T(), spans, 2)
	require.Equal(s.T(), "splitdb.execute", spans[0].OperationName)
	require.Equal(s.T(), true, spans[0].Tag("error"))
	require.Equal(s.T(), 2, spans[1].Tag("attempt"))
	require.Equal(s.T(), "read", spans[1].Tag("role"))
}

func (s *ExecutorTestSuite) newStmt(args []interface{}, res *mysql.Result, err error) *drivertest.MockStmt {
	stmt := new(drivertest.MockStmt)
	stmt.On("Execute", args).Return(res, err).Once()
	stmt.On("Close").Return(nil).Once()
	return stmt
}

func TestExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	require.True(t, p.ShouldRetry(0, errServerGone))
	require.True(t, p.ShouldRetry(MaxConnectionRetries-1, errLostConn))
	require.False(t, p.ShouldRetry(MaxConnectionRetries, errLostConn))
	require.False(t, p.ShouldRetry(0, errDuplicate))
	require.False(t, RetryPolicy{MaxRetries: 3}.ShouldRetry(0, errServerGone))
}
