package profile

import (
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	utilerrors "github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/errors"
	"github.com/pingcap/errors"
)

// ConnectionSource looks up named connection configs. Implementations return
// ErrConnectionNotFound when the name is not configured.
type ConnectionSource interface {
	GetConnection(name string) (*config.Connection, error)
}

// MapSource serves connections from an in-memory map, such as the "db.connection"
// section of a deployment file.
type MapSource map[string]*config.Connection

func (m MapSource) GetConnection(name string) (*config.Connection, error) {
	c, ok := m[name]
	if !ok || c == nil {
		return nil, errors.WithMessage(ErrConnectionNotFound, name)
	}
	return c, nil
}

type Resolution struct {
	Write *Profile
	Read  *Profile
	Split bool
}

// ProfileFor returns the profile serving r. Without a split every role is
// served by the write profile.
func (res *Resolution) ProfileFor(r role.Role) *Profile {
	if r == role.Read && res.Split {
		return res.Read
	}
	return res.Write
}

type Resolver struct {
	source ConnectionSource
}

func NewResolver(source ConnectionSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve builds fresh profiles for the "default" and "readonly" connections.
func (r *Resolver) Resolve() (*Resolution, error) {
	writeCfg, err := r.source.GetConnection(config.DefaultConnectionName)
	if err != nil {
		if utilerrors.Is(err, ErrConnectionNotFound) {
			return nil, ErrMissingDefaultProfile
		}
		return nil, errors.WithMessage(err, "get default connection error")
	}
	write, err := New(config.DefaultConnectionName, writeCfg)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Write: write}

	readCfg, err := r.source.GetConnection(config.ReadOnlyConnectionName)
	if err != nil {
		if utilerrors.Is(err, ErrConnectionNotFound) {
			return res, nil
		}
		return nil, errors.WithMessage(err, "get readonly connection error")
	}
	read, err := New(config.ReadOnlyConnectionName, readCfg)
	if err != nil {
		return nil, err
	}
	res.Read = read
	res.Split = true
	return res, nil
}
