package configcenter

import (
	"context"
	"path"
	"time"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/util/logutil"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/mvcc/mvccpb"
	"go.uber.org/zap"
)

const (
	DefaultEtcdDialTimeout = 3 * time.Second
	DefaultEtcdTimeout     = 5 * time.Second
)

// EtcdConfigCenter stores one yaml connection profile per key under basePath.
type EtcdConfigCenter struct {
	etcdClient  *clientv3.Client
	kv          clientv3.KV
	basePath    string
	strictParse bool
}

func CreateEtcdConfigCenter(cfg config.ConfigEtcd) (*EtcdConfigCenter, error) {
	etcdConfig := clientv3.Config{
		Endpoints:   cfg.Addrs,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: DefaultEtcdDialTimeout,
	}
	etcdClient, err := clientv3.New(etcdConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "create etcd config center error")
	}

	center := NewEtcdConfigCenter(etcdClient, clientv3.NewKV(etcdClient), cfg.BasePath, cfg.StrictParse)
	return center, nil
}

func NewEtcdConfigCenter(etcdClient *clientv3.Client, kv clientv3.KV, basePath string, strictParse bool) *EtcdConfigCenter {
	return &EtcdConfigCenter{
		etcdClient:  etcdClient,
		kv:          kv,
		basePath:    basePath,
		strictParse: strictParse,
	}
}

func (e *EtcdConfigCenter) get(ctx context.Context, name string) (*mvccpb.KeyValue, error) {
	resp, err := e.kv.Get(ctx, getConnectionPath(e.basePath, name))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, errors.WithMessage(profile.ErrConnectionNotFound, name)
	}
	return resp.Kvs[0], nil
}

func (e *EtcdConfigCenter) list(ctx context.Context) ([]*mvccpb.KeyValue, error) {
	baseDir := appendSlashToDirPath(e.basePath)
	resp, err := e.kv.Get(ctx, baseDir, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return resp.Kvs, nil
}

func (e *EtcdConfigCenter) GetConnection(name string) (*config.Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultEtcdTimeout)
	defer cancel()
	etcdKeyValue, err := e.get(ctx, name)
	if err != nil {
		return nil, err
	}

	return config.UnmarshalConnectionConfig(etcdKeyValue.Value)
}

func (e *EtcdConfigCenter) ListConnections() (map[string]*config.Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultEtcdTimeout)
	defer cancel()
	etcdKeyValues, err := e.list(ctx)
	if err != nil {
		return nil, err
	}

	ret := make(map[string]*config.Connection, len(etcdKeyValues))
	for _, kv := range etcdKeyValues {
		connCfg, err := config.UnmarshalConnectionConfig(kv.Value)
		if err != nil {
			if e.strictParse {
				return nil, err
			}
			logutil.BgLogger().Warn("parse connection config error", zap.Error(err), zap.ByteString("connection", kv.Key))
			continue
		}
		ret[path.Base(string(kv.Key))] = connCfg
	}

	return ret, nil
}

func (e *EtcdConfigCenter) SetConnection(name string, cfg *config.Connection) error {
	value, err := config.MarshalConnectionConfig(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultEtcdTimeout)
	defer cancel()
	_, err = e.kv.Put(ctx, getConnectionPath(e.basePath, name), string(value))
	return err
}

func (e *EtcdConfigCenter) DelConnection(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultEtcdTimeout)
	defer cancel()
	_, err := e.kv.Delete(ctx, getConnectionPath(e.basePath, name))
	return err
}

func (e *EtcdConfigCenter) Close() {
	if e.etcdClient == nil {
		return
	}
	if err := e.etcdClient.Close(); err != nil {
		logutil.BgLogger().Error("close etcd client error", zap.Error(err))
	}
}

func getConnectionPath(basePath, name string) string {
	return path.Join(basePath, name)
}

// avoid base dir path prefix equal
func appendSlashToDirPath(dir string) string {
	if len(dir) == 0 {
		return ""
	}
	if dir[len(dir)-1] == '/' {
		return dir
	}
	return dir + "/"
}
