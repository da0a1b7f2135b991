package backend

import (
	"context"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/metrics"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/util/logutil"
	"go.uber.org/zap"
)

type State int

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unopened"
	}
}

type handle struct {
	conn    driver.Conn
	profile *profile.Profile
	role    role.Role
	state   State
}

func (h *handle) isOpen() bool {
	return h.state == StateOpen
}

// ConnManager owns the default connection and, in a split deployment, the
// dedicated read and write connections. It is not safe for concurrent use.
type ConnManager struct {
	resolver    *profile.Resolver
	stats       driver.StatsLogger
	caseFolding string

	def   handle
	read  handle
	write handle

	resolved     bool
	splitEnabled bool
	readProfile  *profile.Profile
	writeProfile *profile.Profile
}

func NewConnManager(resolver *profile.Resolver, stats driver.StatsLogger, caseFolding string) *ConnManager {
	if stats == nil {
		stats = driver.NopStatsLogger
	}
	return &ConnManager{
		resolver:    resolver,
		stats:       stats,
		caseFolding: caseFolding,
	}
}

// Ensure binds the default connection to r and returns it. Without a split
// every role is served by one connection bound as Write.
func (m *ConnManager) Ensure(ctx context.Context, r role.Role) (driver.Conn, error) {
	target := m.target(r)
	if m.def.isOpen() && m.def.role == target {
		return m.def.conn, nil
	}

	res, err := m.resolve()
	if err != nil {
		return nil, err
	}
	if !res.Split {
		target = role.Write
		if m.def.isOpen() && m.def.role == target {
			return m.def.conn, nil
		}
	}

	if m.def.isOpen() {
		m.closeHandle(&m.def)
	}
	if err := m.openHandle(ctx, &m.def, res.ProfileFor(target), target); err != nil {
		return nil, err
	}

	if res.Split {
		if err := m.ensureDedicated(ctx, res); err != nil {
			m.closeHandle(&m.def)
			return nil, err
		}
	}
	return m.def.conn, nil
}

// Conn returns the connection dedicated to r, opening the router first if
// needed. Without a split the default connection is returned.
func (m *ConnManager) Conn(ctx context.Context, r role.Role) (driver.Conn, error) {
	if !m.resolved || !m.def.isOpen() {
		if _, err := m.Ensure(ctx, r); err != nil {
			return nil, err
		}
	}
	if !m.splitEnabled {
		return m.def.conn, nil
	}

	res := &profile.Resolution{Write: m.writeProfile, Read: m.readProfile, Split: true}
	if err := m.ensureDedicated(ctx, res); err != nil {
		return nil, err
	}
	if r == role.Read {
		return m.read.conn, nil
	}
	return m.write.conn, nil
}

func (m *ConnManager) IsUsingReadConnection() bool {
	return m.def.isOpen() && m.def.role == role.Read
}

func (m *ConnManager) IsUsingWriteConnection() bool {
	return m.def.isOpen() && m.def.role == role.Write
}

// BoundRole is the role of the default connection, Default when it is not open.
func (m *ConnManager) BoundRole() role.Role {
	if !m.def.isOpen() {
		return role.Default
	}
	return m.def.role
}

func (m *ConnManager) SplitEnabled() bool {
	return m.splitEnabled
}

// State reports the state of the handle for r. Default is the switchable handle.
func (m *ConnManager) State(r role.Role) State {
	switch r {
	case role.Read:
		return m.read.state
	case role.Write:
		return m.write.state
	default:
		return m.def.state
	}
}

// CloseConnection closes the default connection. The next Ensure reconnects.
func (m *ConnManager) CloseConnection() {
	if m.def.isOpen() {
		m.closeHandle(&m.def)
	}
}

func (m *ConnManager) Close() {
	for _, h := range []*handle{&m.def, &m.read, &m.write} {
		if h.isOpen() {
			m.closeHandle(h)
		}
	}
}

func (m *ConnManager) target(r role.Role) role.Role {
	if r != role.Read {
		return role.Write
	}
	if m.resolved && !m.splitEnabled {
		return role.Write
	}
	return role.Read
}

func (m *ConnManager) resolve() (*profile.Resolution, error) {
	res, err := m.resolver.Resolve()
	if err != nil {
		return nil, driver.NewError(driver.KindConfiguration, "resolve connection profiles error", err)
	}
	m.resolved = true
	m.splitEnabled = res.Split
	m.writeProfile = res.Write
	m.readProfile = res.Read
	return res, nil
}

// ensureDedicated opens the missing dedicated handles. On failure the
// handles it opened are closed again.
func (m *ConnManager) ensureDedicated(ctx context.Context, res *profile.Resolution) error {
	openedRead := false
	if !m.read.isOpen() {
		if err := m.openHandle(ctx, &m.read, res.Read, role.Read); err != nil {
			return err
		}
		openedRead = true
	}
	if !m.write.isOpen() {
		if err := m.openHandle(ctx, &m.write, res.Write, role.Write); err != nil {
			if openedRead {
				m.closeHandle(&m.read)
			}
			return err
		}
	}
	return nil
}

func (m *ConnManager) openHandle(ctx context.Context, h *handle, p *profile.Profile, r role.Role) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "splitdb.connect")
	span.SetTag("role", r.String())
	span.SetTag("profile", p.Name)
	defer span.Finish()

	start := time.Now()
	conn, err := m.open(ctx, p)
	m.stats.LogConnect(p, r, time.Since(start), err)
	if err != nil {
		span.SetTag("error", true)
		return err
	}

	h.conn = conn
	h.profile = p
	h.role = r
	h.state = StateOpen
	metrics.ConnGauge.WithLabelValues(r.String()).Inc()
	return nil
}

func (m *ConnManager) open(ctx context.Context, p *profile.Profile) (driver.Conn, error) {
	d, err := driver.Get(p.Driver)
	if err != nil {
		return nil, err
	}
	conn, err := d.Open(ctx, p)
	if err != nil {
		return nil, driver.MapError(errors.WithMessage(err, "open connection error"))
	}
	if err := initSession(conn, p, m.caseFolding); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logutil.Logger(ctx).Warn("close connection after failed session init error", zap.Error(closeErr))
		}
		return nil, driver.MapError(err)
	}
	return conn, nil
}

func (m *ConnManager) closeHandle(h *handle) {
	if err := h.conn.Close(); err != nil {
		logutil.BgLogger().Warn("close connection error", zap.String("role", h.role.String()),
			zap.Stringer("profile", h.profile), zap.Error(err))
	}
	metrics.ConnGauge.WithLabelValues(h.role.String()).Dec()
	metrics.ConnEventCounter.WithLabelValues(h.role.String(), metrics.ConnEventClosed).Inc()
	h.conn = nil
	h.state = StateClosed
}
