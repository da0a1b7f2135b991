package configcenter

import (
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/pingcap/errors"
)

const (
	ConfigCenterTypeFile = "file"
	ConfigCenterTypeEtcd = "etcd"
)

// ConfigCenter serves named connection profiles. GetConnection returns an
// error wrapping profile.ErrConnectionNotFound for unknown names.
type ConfigCenter interface {
	GetConnection(name string) (*config.Connection, error)
	ListConnections() (map[string]*config.Connection, error)
	Close()
}

func CreateConfigCenter(cfg config.ConfigCenter) (ConfigCenter, error) {
	switch cfg.Type {
	case ConfigCenterTypeFile:
		return CreateFileConfigCenter(cfg.ConfigFile.Path)
	case ConfigCenterTypeEtcd:
		return CreateEtcdConfigCenter(cfg.ConfigEtcd)
	default:
		return nil, errors.New("invalid config center type")
	}
}
