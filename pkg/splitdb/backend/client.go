package backend

import (
	"context"
	"strings"
	"sync"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/util/logutil"
	"github.com/siddontang/go-mysql/client"
	"github.com/siddontang/go-mysql/mysql"
	"github.com/siddontang/go/sync2"
	"go.uber.org/zap"
)

var (
	ErrConnClosed        = errors.New("connection is closed")
	ErrUnsupportedOption = errors.New("unsupported session option")
)

const maxIdlePerProfile = 1

// rawConn is the part of *client.Conn the driver relies on.
type rawConn interface {
	Close() error
	Ping() error
	Execute(command string, args ...interface{}) (*mysql.Result, error)
	Prepare(query string) (*client.Stmt, error)
	Begin() error
	Commit() error
	Rollback() error
	IsInTransaction() bool
}

func init() {
	driver.Register(profile.DefaultDriverName, NewMySQLDriver())
}

// MySQLDriver opens connections with the go-mysql client. Connections of
// persistent profiles are parked on Close and handed out again by Open,
// unless they are closed inside a transaction.
type MySQLDriver struct {
	mu   sync.Mutex
	idle map[string][]rawConn
}

func NewMySQLDriver() *MySQLDriver {
	return &MySQLDriver{
		idle: make(map[string][]rawConn),
	}
}

func (d *MySQLDriver) Open(ctx context.Context, p *profile.Profile) (driver.Conn, error) {
	if p.Persistent {
		if conn := d.takeIdle(ctx, p.Identity()); conn != nil {
			logutil.Logger(ctx).Debug("reuse persistent connection", zap.Stringer("profile", p))
			return newMySQLConn(d, conn, p), nil
		}
	}

	_, addr := p.Network()
	conn, err := client.Connect(addr, p.Username, p.Password, p.DBName)
	if err != nil {
		return nil, errors.WithMessage(err, "connect "+addr+" error")
	}
	if p.Charset != "" {
		if err := conn.SetCharset(p.Charset); err != nil {
			conn.Close()
			return nil, errors.WithMessage(err, "set charset error")
		}
	}
	for k, v := range p.DriverOptions {
		logutil.Logger(ctx).Debug("ignore driver option", zap.String("key", k), zap.String("value", v))
	}
	return newMySQLConn(d, conn, p), nil
}

// Close closes every parked connection.
func (d *MySQLDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, conns := range d.idle {
		for _, conn := range conns {
			if err := conn.Close(); err != nil {
				logutil.BgLogger().Warn("close idle connection error", zap.Error(err))
			}
		}
		delete(d.idle, key)
	}
}

func (d *MySQLDriver) takeIdle(ctx context.Context, key string) rawConn {
	for {
		d.mu.Lock()
		conns := d.idle[key]
		if len(conns) == 0 {
			d.mu.Unlock()
			return nil
		}
		conn := conns[len(conns)-1]
		d.idle[key] = conns[:len(conns)-1]
		d.mu.Unlock()

		if err := conn.Ping(); err != nil {
			logutil.Logger(ctx).Debug("drop dead idle connection", zap.Error(err))
			conn.Close()
			continue
		}
		if conn.IsInTransaction() {
			logutil.Logger(ctx).Warn("drop idle connection with open transaction")
			conn.Close()
			continue
		}
		return conn
	}
}

func (d *MySQLDriver) putIdle(key string, conn rawConn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.idle[key]) >= maxIdlePerProfile {
		return false
	}
	d.idle[key] = append(d.idle[key], conn)
	return true
}

type mySQLConn struct {
	d           *MySQLDriver
	conn        rawConn
	key         string
	persistent  bool
	caseFolding string
	buffered    bool
	closed      sync2.AtomicBool
}

func newMySQLConn(d *MySQLDriver, conn rawConn, p *profile.Profile) *mySQLConn {
	return &mySQLConn{
		d:           d,
		conn:        conn,
		key:         p.Identity(),
		persistent:  p.Persistent,
		caseFolding: driver.CaseNatural,
		buffered:    true,
	}
}

// Close parks a persistent connection for reuse. A connection with an open
// transaction is closed instead so the server rolls the transaction back.
func (c *mySQLConn) Close() error {
	if c.closed.Get() {
		return nil
	}
	c.closed.Set(true)
	if c.persistent && !c.conn.IsInTransaction() && c.d.putIdle(c.key, c.conn) {
		return nil
	}
	return c.conn.Close()
}

func (c *mySQLConn) Ping() error {
	if c.closed.Get() {
		return ErrConnClosed
	}
	return c.conn.Ping()
}

func (c *mySQLConn) SetOption(key string, value interface{}) error {
	switch key {
	case driver.OptionMultiStatements:
		// the client never announces CLIENT_MULTI_STATEMENTS
		if v, ok := value.(bool); ok && !v {
			return nil
		}
	case driver.OptionErrMode:
		if value == driver.ErrModeException {
			return nil
		}
	case driver.OptionCaseFolding:
		if v, ok := value.(string); ok {
			switch v {
			case driver.CaseNatural, driver.CaseLower, driver.CaseUpper:
				c.caseFolding = v
				return nil
			}
		}
	case driver.OptionBufferedQuery:
		if v, ok := value.(bool); ok {
			c.buffered = v
			return nil
		}
	}
	return errors.WithMessage(ErrUnsupportedOption, key)
}

func (c *mySQLConn) Execute(command string, args ...interface{}) (*mysql.Result, error) {
	if c.closed.Get() {
		return nil, ErrConnClosed
	}
	res, err := c.conn.Execute(command, args...)
	if err != nil {
		return nil, err
	}
	foldFieldNames(res, c.caseFolding)
	return res, nil
}

func (c *mySQLConn) Prepare(query string) (driver.Stmt, error) {
	if c.closed.Get() {
		return nil, ErrConnClosed
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &mySQLStmt{stmt: stmt, caseFolding: c.caseFolding}, nil
}

func (c *mySQLConn) Begin() error {
	if c.closed.Get() {
		return ErrConnClosed
	}
	return c.conn.Begin()
}

func (c *mySQLConn) Commit() error {
	if c.closed.Get() {
		return ErrConnClosed
	}
	return c.conn.Commit()
}

func (c *mySQLConn) Rollback() error {
	if c.closed.Get() {
		return ErrConnClosed
	}
	return c.conn.Rollback()
}

type mySQLStmt struct {
	stmt        *client.Stmt
	caseFolding string
}

func (s *mySQLStmt) Execute(args ...interface{}) (*mysql.Result, error) {
	res, err := s.stmt.Execute(args...)
	if err != nil {
		return nil, err
	}
	foldFieldNames(res, s.caseFolding)
	return res, nil
}

func (s *mySQLStmt) Close() error {
	return s.stmt.Close()
}

func foldFieldNames(res *mysql.Result, caseFolding string) {
	if res == nil || res.Resultset == nil || caseFolding == driver.CaseNatural {
		return
	}
	fold := strings.ToLower
	if caseFolding == driver.CaseUpper {
		fold = strings.ToUpper
	}
	names := make(map[string]int, len(res.Fields))
	for i, f := range res.Fields {
		f.Name = []byte(fold(string(f.Name)))
		names[string(f.Name)] = i
	}
	res.FieldNames = names
}
