// Package drivertest provides testify mocks for the driver interfaces.
package drivertest

import (
	"context"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/siddontang/go-mysql/mysql"
	"github.com/stretchr/testify/mock"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Open(ctx context.Context, p *profile.Profile) (driver.Conn, error) {
	ret := m.Called(ctx, p)

	var r0 driver.Conn
	if rf, ok := ret.Get(0).(func(context.Context, *profile.Profile) driver.Conn); ok {
		r0 = rf(ctx, p)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(driver.Conn)
	}
	return r0, ret.Error(1)
}

type MockConn struct {
	mock.Mock
}

func (m *MockConn) Close() error {
	return m.Called().Error(0)
}

func (m *MockConn) Ping() error {
	return m.Called().Error(0)
}

func (m *MockConn) SetOption(key string, value interface{}) error {
	return m.Called(key, value).Error(0)
}

func (m *MockConn) Execute(command string, args ...interface{}) (*mysql.Result, error) {
	ret := m.Called(command, args)

	var r0 *mysql.Result
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*mysql.Result)
	}
	return r0, ret.Error(1)
}

func (m *MockConn) Prepare(query string) (driver.Stmt, error) {
	ret := m.Called(query)

	var r0 driver.Stmt
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(driver.Stmt)
	}
	return r0, ret.Error(1)
}

func (m *MockConn) Begin() error {
	return m.Called().Error(0)
}

func (m *MockConn) Commit() error {
	return m.Called().Error(0)
}

func (m *MockConn) Rollback() error {
	return m.Called().Error(0)
}

// AcceptSession expects the options and statements applied to every new connection.
func (m *MockConn) AcceptSession() *MockConn {
	m.On("SetOption", mock.Anything, mock.Anything).Return(nil)
	m.On("Execute", mock.MatchedBy(isSessionStatement), mock.Anything).Return(&mysql.Result{}, nil)
	return m
}

func isSessionStatement(sql string) bool {
	return sql == "SET SQL_MODE=''" || sql == "SET time_zone = '+00:00'"
}

type MockStmt struct {
	mock.Mock
}

func (m *MockStmt) Execute(args ...interface{}) (*mysql.Result, error) {
	ret := m.Called(args)

	var r0 *mysql.Result
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*mysql.Result)
	}
	return r0, ret.Error(1)
}

func (m *MockStmt) Close() error {
	return m.Called().Error(0)
}

type MockStatsLogger struct {
	mock.Mock
}

func (m *MockStatsLogger) LogConnect(p *profile.Profile, r role.Role, d time.Duration, err error) {
	m.Called(p, r, d, err)
}

func (m *MockStatsLogger) LogQuery(sql string, bind *driver.Bind, r role.Role, d time.Duration, res *mysql.Result, err error) {
	m.Called(sql, bind, r, d, res, err)
}

func (m *MockStatsLogger) LogTransaction(op string, d time.Duration, err error) {
	m.Called(op, d, err)
}
