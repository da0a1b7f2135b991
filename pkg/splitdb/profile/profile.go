package profile

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/pingcap/errors"
)

const (
	DefaultPort       = 3306
	DefaultDriverName = "mysql"
)

// Profile is the resolved, immutable form of a connection config.
// A new Profile is built for every connect decision.
type Profile struct {
	Name           string
	Host           string
	Socket         string
	Port           int
	Username       string
	Password       string
	DBName         string
	Charset        string
	Driver         string
	DriverOptions  map[string]string
	Persistent     bool
	InitStatements string
	Buffered       bool
}

// New validates c and normalizes its host field.
func New(name string, c *config.Connection) (*Profile, error) {
	if c == nil {
		return nil, errors.WithMessage(ErrConnectionNotFound, name)
	}
	if c.Host == "" {
		return nil, errors.WithMessage(ErrMissingHost, name)
	}

	p := &Profile{
		Name:           name,
		Username:       c.Username,
		Password:       c.Password,
		DBName:         c.DBName,
		Charset:        c.Charset,
		Driver:         c.Driver,
		Persistent:     c.Persistent,
		InitStatements: c.InitStatements,
		Buffered:       true,
	}
	if p.Driver == "" {
		p.Driver = DefaultDriverName
	}
	if c.UseBufferedQuery != nil {
		p.Buffered = *c.UseBufferedQuery
	}
	if len(c.DriverOptions) != 0 {
		p.DriverOptions = make(map[string]string, len(c.DriverOptions))
		for k, v := range c.DriverOptions {
			p.DriverOptions[k] = v
		}
	}

	switch {
	case strings.Contains(c.Host, "/"):
		p.Socket = c.Host
	case strings.Contains(c.Host, ":"):
		if c.Port != 0 {
			return nil, errors.WithMessage(ErrConflictingPort, name)
		}
		host, port, err := net.SplitHostPort(c.Host)
		if err != nil {
			return nil, errors.WithMessage(ErrInvalidPort, err.Error())
		}
		p.Host = host
		if p.Port, err = strconv.Atoi(port); err != nil {
			return nil, errors.WithMessage(ErrInvalidPort, c.Host)
		}
	default:
		p.Host = c.Host
		p.Port = c.Port
	}
	if p.Socket == "" && p.Port == 0 {
		p.Port = DefaultPort
	}
	return p, nil
}

// Network returns the dial network and address for the profile.
func (p *Profile) Network() (string, string) {
	if p.Socket != "" {
		return "unix", p.Socket
	}
	return "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Identity keys persistent connections. Two profiles with the same identity
// may share a physical connection.
func (p *Profile) Identity() string {
	_, addr := p.Network()
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", p.Driver, addr, p.Username, p.Password, p.DBName, p.Charset)
}

func (p *Profile) String() string {
	_, addr := p.Network()
	return fmt.Sprintf("%s(%s@%s/%s)", p.Name, p.Username, addr, p.DBName)
}
