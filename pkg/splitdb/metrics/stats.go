package metrics

import (
	"fmt"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/ast"
	"github.com/pingcap/tidb/util/logutil"
	"github.com/siddontang/go-mysql/mysql"
	"go.uber.org/zap"
)

// StatsLogger records router events into prometheus collectors and logs
// queries according to the router config.
type StatsLogger struct {
	logAllQueries bool
	slowThreshold time.Duration
	logger        *zap.Logger
}

func NewStatsLogger(cfg config.Router) *StatsLogger {
	return &StatsLogger{
		logAllQueries: cfg.LogAllQueries,
		slowThreshold: time.Duration(cfg.LogQueryTime * float64(time.Second)),
		logger:        logutil.BgLogger().Named("splitdb.stats"),
	}
}

// WithLogger replaces the logger, mostly useful for tests.
func (s *StatsLogger) WithLogger(logger *zap.Logger) *StatsLogger {
	s.logger = logger
	return s
}

func (s *StatsLogger) LogConnect(p *profile.Profile, r role.Role, d time.Duration, err error) {
	ConnectDurationHistogram.WithLabelValues(r.String(), RetLabel(err)).Observe(d.Seconds())
	if err != nil {
		ConnEventCounter.WithLabelValues(r.String(), ConnEventFailed).Inc()
		s.logger.Warn("connect failed", zap.Stringer("profile", p), zap.Stringer("role", r),
			zap.Duration("duration", d), zap.Error(err))
		return
	}
	ConnEventCounter.WithLabelValues(r.String(), ConnEventOpened).Inc()
	s.logger.Debug("connected", zap.Stringer("profile", p), zap.Stringer("role", r), zap.Duration("duration", d))
}

func (s *StatsLogger) LogQuery(sql string, bind *driver.Bind, r role.Role, d time.Duration, res *mysql.Result, err error) {
	sqlType := ast.KeywordTypeName(sql)
	QueryCounter.WithLabelValues(r.String(), sqlType, RetLabel(err)).Inc()
	QueryDurationHistogram.WithLabelValues(r.String(), sqlType).Observe(d.Seconds())
	if err != nil {
		return
	}

	slow := s.slowThreshold > 0 && d >= s.slowThreshold
	if !s.logAllQueries && !slow {
		return
	}

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Stringer("role", r),
		zap.Duration("duration", d),
		zap.Strings("bind", bindStrings(bind)),
	}
	if res != nil {
		fields = append(fields, zap.Uint64("affected_rows", res.AffectedRows))
		if res.Resultset != nil {
			fields = append(fields, zap.Int("rows", len(res.Values)))
		}
	}
	if slow {
		info := ast.InspectSQL(sql)
		fields = append(fields, zap.String("digest", fmt.Sprintf("%08x", info.Digest)), zap.String("table", info.Table))
		s.logger.Warn("slow query", fields...)
		return
	}
	s.logger.Debug("query", fields...)
}

func (s *StatsLogger) LogTransaction(op string, d time.Duration, err error) {
	TxnCounter.WithLabelValues(op, RetLabel(err)).Inc()
	TxnDurationHistogram.WithLabelValues(op).Observe(d.Seconds())
	if s.logAllQueries {
		s.logger.Debug("transaction", zap.String("op", op), zap.Duration("duration", d), zap.Error(err))
	}
}

func bindStrings(bind *driver.Bind) []string {
	if bind.IsEmpty() {
		return nil
	}
	ret := make([]string, 0, len(bind.Args)+len(bind.Named))
	for _, arg := range bind.Args {
		ret = append(ret, fmt.Sprintf("%v", arg))
	}
	for _, name := range bind.Names() {
		ret = append(ret, fmt.Sprintf("%s=%v", name, bind.Named[name]))
	}
	return ret
}
