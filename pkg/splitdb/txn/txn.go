package txn

import (
	"context"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/tidb/util/logutil"
	"go.uber.org/zap"
)

const (
	OpBegin    = "begin"
	OpCommit   = "commit"
	OpRollback = "rollback"
)

// ConnEnsurer binds the default connection to a role.
type ConnEnsurer interface {
	Ensure(ctx context.Context, r role.Role) (driver.Conn, error)
}

// Controller tracks nested transactions. Only the outermost frame reaches
// the connection, and a nested rollback poisons the transaction until the
// outermost frame rolls back.
type Controller struct {
	conns ConnEnsurer
	stats driver.StatsLogger

	level             int
	rolledBackPending bool
}

func NewController(conns ConnEnsurer, stats driver.StatsLogger) *Controller {
	if stats == nil {
		stats = driver.NopStatsLogger
	}
	return &Controller{
		conns: conns,
		stats: stats,
	}
}

func (c *Controller) Level() int {
	return c.level
}

func (c *Controller) InTransaction() bool {
	return c.level > 0
}

func (c *Controller) RolledBackPending() bool {
	return c.rolledBackPending
}

func (c *Controller) Begin(ctx context.Context) error {
	if c.rolledBackPending {
		return driver.ErrIncompleteRollback
	}
	if c.level == 0 {
		if err := c.run(ctx, OpBegin, driver.Conn.Begin); err != nil {
			return err
		}
	}
	c.level++
	return nil
}

func (c *Controller) Commit(ctx context.Context) error {
	switch {
	case c.level == 1 && !c.rolledBackPending:
		if err := c.run(ctx, OpCommit, driver.Conn.Commit); err != nil {
			return err
		}
	case c.level == 0:
		return driver.ErrAsymmetricCommit
	case c.rolledBackPending:
		return driver.ErrIncompleteRollback
	}
	c.level--
	return nil
}

func (c *Controller) Rollback(ctx context.Context) error {
	switch {
	case c.level == 1:
		if err := c.run(ctx, OpRollback, driver.Conn.Rollback); err != nil {
			return err
		}
		c.rolledBackPending = false
	case c.level == 0:
		return driver.ErrAsymmetricRollback
	default:
		c.rolledBackPending = true
	}
	c.level--
	return nil
}

func (c *Controller) run(ctx context.Context, op string, fn func(driver.Conn) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "splitdb.txn."+op)
	defer span.Finish()

	start := time.Now()
	conn, err := c.conns.Ensure(ctx, role.Write)
	if err == nil {
		err = fn(conn)
	}
	c.stats.LogTransaction(op, time.Since(start), err)
	if err != nil {
		span.SetTag("error", true)
		err = driver.MapError(err)
		logutil.Logger(ctx).Error("transaction error", zap.String("op", op), zap.Int("level", c.level), zap.Error(err))
		return err
	}
	return nil
}
