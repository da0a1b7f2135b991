package configcenter

import (
	"io/ioutil"
	"path"
	"path/filepath"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/pingcap/errors"
)

var (
	ErrDuplicateConnection = errors.New("connection defined in more than one file")
)

// FileConfigCenter loads the "db.connection" section of every deployment
// yaml file in a directory.
type FileConfigCenter struct {
	dir      string
	cfgs     map[string]*config.Connection // key: connection name
	connpath map[string]string             // key: connection name, value: config file path
}

func CreateFileConfigCenter(dir string) (*FileConfigCenter, error) {
	yamlFiles, err := listAllYamlFiles(dir)
	if err != nil {
		return nil, err
	}

	c := newFileConfigCenter(dir)

	for _, yamlFile := range yamlFiles {
		fileData, err := ioutil.ReadFile(yamlFile)
		if err != nil {
			return nil, err
		}
		cfg, err := config.UnmarshalDeploymentConfig(fileData)
		if err != nil {
			return nil, errors.WithMessage(err, "parse "+yamlFile+" error")
		}
		for name, conn := range cfg.DB.Connection {
			if prev, ok := c.connpath[name]; ok {
				return nil, errors.WithMessage(ErrDuplicateConnection, name+": "+prev+", "+yamlFile)
			}
			c.cfgs[name] = conn
			c.connpath[name] = yamlFile
		}
	}

	return c, nil
}

func newFileConfigCenter(dir string) *FileConfigCenter {
	return &FileConfigCenter{
		dir:      dir,
		cfgs:     make(map[string]*config.Connection),
		connpath: make(map[string]string),
	}
}

func listAllYamlFiles(dir string) ([]string, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var ret []string
	for _, info := range infos {
		fileName := info.Name()
		if ext := path.Ext(fileName); ext == ".yaml" || ext == ".yml" {
			ret = append(ret, filepath.Join(dir, fileName))
		}
	}

	return ret, nil
}

func (f *FileConfigCenter) GetConnection(name string) (*config.Connection, error) {
	cfg, ok := f.cfgs[name]
	if !ok || cfg == nil {
		return nil, errors.WithMessage(profile.ErrConnectionNotFound, name)
	}
	return cfg, nil
}

func (f *FileConfigCenter) ListConnections() (map[string]*config.Connection, error) {
	ret := make(map[string]*config.Connection, len(f.cfgs))
	for name, cfg := range f.cfgs {
		ret[name] = cfg
	}
	return ret, nil
}

func (f *FileConfigCenter) Close() {}
