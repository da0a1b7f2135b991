package splitdb

import (
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/configcenter"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/driver"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/metrics"
	"github.com/siddontang/go/sync2"
)

// App wires the process config into adapters and the admin server.
type App struct {
	cfg          *config.SplitDB
	configCenter configcenter.ConfigCenter
	stats        *metrics.StatsLogger
	apiServer    *HttpApiServer
	closed       sync2.AtomicInt32
}

func NewApp(cfg *config.SplitDB) *App {
	return &App{
		cfg: cfg,
	}
}

func (a *App) Init() error {
	cc, err := configcenter.CreateConfigCenter(a.cfg.ConfigCenter)
	if err != nil {
		return err
	}
	return a.InitWithConfigCenter(cc)
}

// InitWithConfigCenter is Init with an already created config center.
func (a *App) InitWithConfigCenter(cc configcenter.ConfigCenter) error {
	a.configCenter = cc

	metrics.RegisterSplitDBMetrics()
	a.stats = metrics.NewStatsLogger(a.cfg.Router)

	if a.cfg.AdminServer.Enable {
		apiServer, err := CreateHttpApiServer(a.configCenter, a.cfg)
		if err != nil {
			a.configCenter.Close()
			return err
		}
		a.apiServer = apiServer
	}
	return nil
}

// NewAdapter returns a fresh adapter. Adapters are not shared between goroutines.
func (a *App) NewAdapter() *Adapter {
	return NewAdapter(a.configCenter, a.cfg.Router, a.stats)
}

func (a *App) ConfigCenter() configcenter.ConfigCenter {
	return a.configCenter
}

// Run serves the admin API until Close. It returns at once when the admin
// server is disabled.
func (a *App) Run() {
	if a.apiServer == nil {
		return
	}
	a.apiServer.Run()
}

func (a *App) Close() {
	if !a.closed.CompareAndSwap(0, 1) {
		return
	}
	if a.apiServer != nil {
		a.apiServer.Close()
	}
	if a.configCenter != nil {
		a.configCenter.Close()
	}
	driver.CloseAll()
}
