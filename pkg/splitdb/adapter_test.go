package splitdb

import (
	"context"
	"testing"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver/drivertest"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/siddontang/go-mysql/mysql"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const adapterMockDriver = "adapter_mock"

type AdapterTestSuite struct {
	suite.Suite

	ctx        context.Context
	mockDriver *drivertest.MockDriver
	primary    *config.Connection
	replica    *config.Connection
}

func (s *AdapterTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mockDriver = new(drivertest.MockDriver)
	driver.Register(adapterMockDriver, s.mockDriver)
	s.primary = &config.Connection{Host: "primary", Username: "magento", DBName: "shop", Driver: adapterMockDriver}
	s.replica = &config.Connection{Host: "replica", Username: "magento", DBName: "shop", Driver: adapterMockDriver}
}

func (s *AdapterTestSuite) expectOpen(profileName string) *drivertest.MockConn {
	conn := new(drivertest.MockConn).AcceptSession()
	s.mockDriver.On("Open", mock.Anything, mock.MatchedBy(func(p *profile.Profile) bool {
		return p.Name == profileName
	})).Return(conn, nil).Once()
	return conn
}

func (s *AdapterTestSuite) newAdapter(split bool) *Adapter {
	source := profile.MapSource{config.DefaultConnectionName: s.primary}
	if split {
		source[config.ReadOnlyConnectionName] = s.replica
	}
	return NewAdapter(source, config.Router{}, nil)
}

func (s *AdapterTestSuite) TestNoSplitUsesOneConnection() {
	conn := s.expectOpen(config.DefaultConnectionName)
	conn.On("Execute", "SELECT `id` FROM `users`", mock.Anything).Return(&mysql.Result{}, nil).Twice()
	adapter := s.newAdapter(false)

	_, err := adapter.Query(s.ctx, role.Text("SELECT `id` FROM `users`"), nil)
	require.NoError(s.T(), err)
	require.True(s.T(), adapter.IsUsingWriteConnection())
	require.False(s.T(), adapter.IsUsingReadConnection())

	_, err = adapter.QueryRole(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Read)
	require.NoError(s.T(), err)
	require.True(s.T(), adapter.IsUsingWriteConnection())

	c, err := adapter.Connection(s.ctx, role.Read)
	require.NoError(s.T(), err)
	require.Equal(s.T(), conn, c)
	s.mockDriver.AssertNumberOfCalls(s.T(), "Open", 1)
}

func (s *AdapterTestSuite) TestSplitRoutesReadAndWrite() {
	defRead := s.expectOpen(config.ReadOnlyConnectionName)
	dedicatedRead := s.expectOpen(config.ReadOnlyConnectionName)
	dedicatedWrite := s.expectOpen(config.DefaultConnectionName)
	defWrite := s.expectOpen(config.DefaultConnectionName)
	adapter := s.newAdapter(true)

	sel := NewSelect().From("sales_order", "o", "entity_id")
	defRead.On("Execute", sel.SQL(), mock.Anything).Return(&mysql.Result{}, nil).Once()
	defRead.On("Close").Return(nil).Once()
	_, err := adapter.Query(s.ctx, sel, nil)
	require.NoError(s.T(), err)
	require.True(s.T(), adapter.IsUsingReadConnection())

	stmt := new(drivertest.MockStmt)
	stmt.On("Execute", []interface{}{"a"}).Return(&mysql.Result{AffectedRows: 1}, nil).Once()
	stmt.On("Close").Return(nil).Once()
	defWrite.On("Prepare", "INSERT INTO `users` (`id`, `name`) VALUES (NOW(), ?)").Return(stmt, nil).Once()

	affected, err := adapter.Insert(s.ctx, "users", map[string]interface{}{"name": "a", "id": Expr("NOW()")})
	require.NoError(s.T(), err)
	require.Equal(s.T(), uint64(1), affected)
	require.True(s.T(), adapter.IsUsingWriteConnection())

	c, err := adapter.Connection(s.ctx, role.Read)
	require.NoError(s.T(), err)
	require.Equal(s.T(), dedicatedRead, c)
	c, err = adapter.Connection(s.ctx, role.Write)
	require.NoError(s.T(), err)
	require.Equal(s.T(), dedicatedWrite, c)

	s.mockDriver.AssertNumberOfCalls(s.T(), "Open", 4)
	defRead.AssertExpectations(s.T())
	stmt.AssertExpectations(s.T())
}

func (s *AdapterTestSuite) TestTransactionPinsWrite() {
	defRead := s.expectOpen(config.ReadOnlyConnectionName)
	s.expectOpen(config.ReadOnlyConnectionName)
	s.expectOpen(config.DefaultConnectionName)
	defWrite := s.expectOpen(config.DefaultConnectionName)
	adapter := s.newAdapter(true)

	require.NoError(s.T(), adapter.Connect(s.ctx, role.Read))
	require.True(s.T(), adapter.IsUsingReadConnection())

	defRead.On("Close").Return(nil).Once()
	defWrite.On("Begin").Return(nil).Once()
	defWrite.On("Execute", "SELECT `id` FROM `users`", mock.Anything).Return(&mysql.Result{}, nil).Once()
	defWrite.On("Commit").Return(nil).Once()

	require.NoError(s.T(), adapter.BeginTransaction(s.ctx))
	require.NoError(s.T(), adapter.BeginTransaction(s.ctx))
	require.Equal(s.T(), 2, adapter.TransactionLevel())

	_, err := adapter.QueryRole(s.ctx, role.Text("SELECT `id` FROM `users`"), nil, role.Read)
	require.NoError(s.T(), err)
	require.NoError(s.T(), adapter.Connect(s.ctx, role.Read))
	require.True(s.T(), adapter.IsUsingWriteConnection())

	require.NoError(s.T(), adapter.Commit(s.ctx))
	require.NoError(s.T(), adapter.Commit(s.ctx))
	require.Equal(s.T(), 0, adapter.TransactionLevel())
	require.Equal(s.T(), driver.ErrAsymmetricCommit, adapter.Commit(s.ctx))
	defWrite.AssertExpectations(s.T())
}

func (s *AdapterTestSuite) TestConnectionInTransactionIsDefault() {
	defWrite := s.expectOpen(config.DefaultConnectionName)
	dedicatedRead := s.expectOpen(config.ReadOnlyConnectionName)
	dedicatedWrite := s.expectOpen(config.DefaultConnectionName)
	adapter := s.newAdapter(true)

	defWrite.On("Begin").Return(nil).Once()
	defWrite.On("Commit").Return(nil).Once()
	require.NoError(s.T(), adapter.BeginTransaction(s.ctx))

	for _, r := range []role.Role{role.Write, role.Read, role.Default} {
		c, err := adapter.Connection(s.ctx, r)
		require.NoError(s.T(), err)
		require.Equal(s.T(), defWrite, c, r.String())
	}

	require.NoError(s.T(), adapter.Commit(s.ctx))
	c, err := adapter.Connection(s.ctx, role.Write)
	require.NoError(s.T(), err)
	require.Equal(s.T(), dedicatedWrite, c)
	c, err = adapter.Connection(s.ctx, role.Read)
	require.NoError(s.T(), err)
	require.Equal(s.T(), dedicatedRead, c)

	s.mockDriver.AssertNumberOfCalls(s.T(), "Open", 3)
	defWrite.AssertExpectations(s.T())
}

func (s *AdapterTestSuite) TestNestedRollback() {
	conn := s.expectOpen(config.DefaultConnectionName)
	conn.On("Begin").Return(nil).Once()
	conn.On("Rollback").Return(nil).Once()
	adapter := s.newAdapter(false)

	require.NoError(s.T(), adapter.BeginTransaction(s.ctx))
	require.NoError(s.T(), adapter.BeginTransaction(s.ctx))
	require.NoError(s.T(), adapter.Rollback(s.ctx))
	require.Equal(s.T(), driver.ErrIncompleteRollback, adapter.Commit(s.ctx))
	require.Equal(s.T(), driver.ErrIncompleteRollback, adapter.BeginTransaction(s.ctx))
	require.NoError(s.T(), adapter.Rollback(s.ctx))
	require.Equal(s.T(), driver.ErrAsymmetricRollback, adapter.Rollback(s.ctx))
	conn.AssertExpectations(s.T())
}

func (s *AdapterTestSuite) TestDelete() {
	conn := s.expectOpen(config.DefaultConnectionName)
	conn.On("Execute", "DELETE FROM `users` WHERE (id = 1) AND (store_id = 0)", mock.Anything).
		Return(&mysql.Result{AffectedRows: 3}, nil).Once()
	adapter := s.newAdapter(false)

	affected, err := adapter.Delete(s.ctx, "users", "id = 1", "store_id = 0")
	require.NoError(s.T(), err)
	require.Equal(s.T(), uint64(3), affected)
	conn.AssertExpectations(s.T())
}

func (s *AdapterTestSuite) TestUpdateFromSelectBindsWrite() {
	s.expectOpen(config.DefaultConnectionName)
	s.expectOpen(config.ReadOnlyConnectionName)
	s.expectOpen(config.DefaultConnectionName)
	adapter := s.newAdapter(true)

	sel := NewSelect().From("stock_item", "si").Column("si", "qty", "qty")
	sql, err := adapter.UpdateFromSelect(s.ctx, sel, "product", "p")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "UPDATE `product` AS `p`\n INNER JOIN `stock_item` AS `si`\nSET `p`.`qty` = `si`.`qty`", sql)
	require.True(s.T(), adapter.IsUsingWriteConnection())
}

func (s *AdapterTestSuite) TestConfigurationError() {
	adapter := NewAdapter(profile.MapSource{config.ReadOnlyConnectionName: s.replica}, config.Router{}, nil)

	_, err := adapter.Query(s.ctx, role.Text("SELECT `id` FROM `users`"), nil)
	require.Equal(s.T(), driver.KindConfiguration, driver.KindOf(err))
	s.mockDriver.AssertNotCalled(s.T(), "Open", mock.Anything, mock.Anything)
}

func (s *AdapterTestSuite) TestClose() {
	conn := s.expectOpen(config.DefaultConnectionName)
	conn.On("Close").Return(nil).Once()
	adapter := s.newAdapter(false)

	require.NoError(s.T(), adapter.Connect(s.ctx, role.Write))
	adapter.Close()
	adapter.Close()

	_, err := adapter.Query(s.ctx, role.Text("SELECT 1"), nil)
	require.Equal(s.T(), ErrAdapterClosed, err)
	require.Equal(s.T(), ErrAdapterClosed, adapter.BeginTransaction(s.ctx))
	require.Equal(s.T(), ErrAdapterClosed, adapter.Connect(s.ctx, role.Read))
	_, err = adapter.Connection(s.ctx, role.Read)
	require.Equal(s.T(), ErrAdapterClosed, err)
	conn.AssertExpectations(s.T())
}

func TestAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(AdapterTestSuite))
}
