package splitdb

import (
	"net"
	"net/http"
	"net/http/pprof"
	"sort"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/configcenter"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	utilerrors "github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/errors"
	"github.com/gin-gonic/gin"
	"github.com/pingcap/tidb/util/logutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const (
	ParamConnection = "connection"

	maskedPassword = "******"
)

type HttpApiServer struct {
	cfg       *config.SplitDB
	cfgCenter configcenter.ConfigCenter
	listener  net.Listener
	closeCh   chan struct{}

	engine *gin.Engine
}

type ConnectionHttpHandler struct {
	cfgCenter configcenter.ConfigCenter
}

type CommonJsonResp struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// ConnectionView is a connection profile with its password masked.
type ConnectionView struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	DBName     string `json:"dbname"`
	Driver     string `json:"driver,omitempty"`
	Persistent bool   `json:"persistent"`
}

type RouterView struct {
	Split bool            `json:"split"`
	Write *ConnectionView `json:"write"`
	Read  *ConnectionView `json:"read,omitempty"`
}

func NewConnectionHttpHandler(cfgCenter configcenter.ConfigCenter) *ConnectionHttpHandler {
	return &ConnectionHttpHandler{
		cfgCenter: cfgCenter,
	}
}

func CreateHttpApiServer(cfgCenter configcenter.ConfigCenter, cfg *config.SplitDB) (*HttpApiServer, error) {
	apiServer := &HttpApiServer{
		cfg:       cfg,
		cfgCenter: cfgCenter,
		closeCh:   make(chan struct{}),
	}

	listener, err := net.Listen("tcp", apiServer.cfg.AdminServer.Addr)
	if err != nil {
		return nil, err
	}
	if cfg.AdminServer.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.AdminServer.MaxConnections)
	}
	apiServer.listener = listener

	engine := gin.New()
	engine.Use(gin.Recovery())

	adminRouteGroup := engine.Group("/admin")
	apiServer.wrapBasicAuthGinMiddleware(adminRouteGroup)
	connectionHttpHandler := NewConnectionHttpHandler(apiServer.cfgCenter)
	connectionHttpHandler.AddHandlersToRouteGroup(adminRouteGroup)

	metricsRouteGroup := engine.Group("/metrics")
	metricsRouteGroup.GET("/", gin.WrapF(promhttp.Handler().ServeHTTP))

	pprofRouteGroup := engine.Group("/debug/pprof")
	pprofRouteGroup.Any("/", gin.WrapF(pprof.Index))
	pprofRouteGroup.Any("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofRouteGroup.Any("/profile", gin.WrapF(pprof.Profile))
	pprofRouteGroup.Any("/symbol", gin.WrapF(pprof.Symbol))
	pprofRouteGroup.Any("/trace", gin.WrapF(pprof.Trace))
	pprofRouteGroup.Any("/goroutine", gin.WrapF(pprof.Handler("goroutine").ServeHTTP))
	pprofRouteGroup.Any("/heap", gin.WrapF(pprof.Handler("heap").ServeHTTP))
	pprofRouteGroup.Any("/allocs", gin.WrapF(pprof.Handler("allocs").ServeHTTP))

	apiServer.engine = engine
	return apiServer, nil
}

func (h *HttpApiServer) wrapBasicAuthGinMiddleware(group *gin.RouterGroup) {
	if !h.cfg.AdminServer.EnableBasicAuth {
		return
	}
	basicAuthUser := h.cfg.AdminServer.User
	basicAuthPassword := h.cfg.AdminServer.Password
	if basicAuthUser != "" && basicAuthPassword != "" {
		group.Use(gin.BasicAuth(gin.Accounts{basicAuthUser: basicAuthPassword}))
	}
}

func (h *HttpApiServer) Addr() string {
	return h.listener.Addr().String()
}

func (h *HttpApiServer) Run() {
	defer func() {
		if err := h.listener.Close(); err != nil {
			logutil.BgLogger().Warn("close http api server listener error", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/", h.engine)
		errCh <- http.Serve(h.listener, mux)
	}()

	select {
	case <-h.closeCh:
		logutil.BgLogger().Info("closing http api server")
	case err := <-errCh:
		logutil.BgLogger().Error("http api server exit on error", zap.Error(err))
	}
}

func (h *HttpApiServer) Close() {
	close(h.closeCh)
}

func (n *ConnectionHttpHandler) AddHandlersToRouteGroup(group *gin.RouterGroup) {
	group.GET("/connections", n.HandleListConnections)
	group.GET("/connections/:connection", n.HandleGetConnection)
	group.GET("/router", n.HandleRouter)
}

func (n *ConnectionHttpHandler) HandleListConnections(c *gin.Context) {
	cfgs, err := n.cfgCenter.ListConnections()
	if err != nil {
		errMsg := "list connections from configcenter error"
		logutil.BgLogger().Error(errMsg, zap.Error(err))
		c.JSON(http.StatusOK, CreateJsonResp(http.StatusInternalServerError, errMsg))
		return
	}

	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]*ConnectionView, 0, len(names))
	for _, name := range names {
		views = append(views, newConnectionView(name, cfgs[name]))
	}
	c.JSON(http.StatusOK, CreateDataJsonResp(views))
}

func (n *ConnectionHttpHandler) HandleGetConnection(c *gin.Context) {
	name := c.Param(ParamConnection)
	if name == "" {
		c.JSON(http.StatusOK, CreateJsonResp(http.StatusBadRequest, "bad connection parameter"))
		return
	}

	cfg, err := n.cfgCenter.GetConnection(name)
	if err != nil {
		if utilerrors.Is(err, profile.ErrConnectionNotFound) {
			c.JSON(http.StatusOK, CreateJsonResp(http.StatusNotFound, "connection not found"))
			return
		}
		errMsg := "get connection from configcenter error"
		logutil.BgLogger().Error(errMsg, zap.Error(err), zap.String("connection", name))
		c.JSON(http.StatusOK, CreateJsonResp(http.StatusInternalServerError, errMsg))
		return
	}
	c.JSON(http.StatusOK, CreateDataJsonResp(newConnectionView(name, cfg)))
}

func (n *ConnectionHttpHandler) HandleRouter(c *gin.Context) {
	res, err := profile.NewResolver(n.cfgCenter).Resolve()
	if err != nil {
		errMsg := "resolve connection profiles error"
		logutil.BgLogger().Error(errMsg, zap.Error(err))
		c.JSON(http.StatusOK, CreateJsonResp(http.StatusInternalServerError, errMsg+": "+err.Error()))
		return
	}

	view := &RouterView{Split: res.Split, Write: newProfileView(res.Write)}
	if res.Split {
		view.Read = newProfileView(res.Read)
	}
	c.JSON(http.StatusOK, CreateDataJsonResp(view))
}

func newConnectionView(name string, cfg *config.Connection) *ConnectionView {
	v := &ConnectionView{
		Name:       name,
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		DBName:     cfg.DBName,
		Driver:     cfg.Driver,
		Persistent: cfg.Persistent,
	}
	if cfg.Password != "" {
		v.Password = maskedPassword
	}
	return v
}

func newProfileView(p *profile.Profile) *ConnectionView {
	network, addr := p.Network()
	v := &ConnectionView{
		Name:       p.Name,
		Host:       addr,
		Username:   p.Username,
		DBName:     p.DBName,
		Driver:     p.Driver,
		Persistent: p.Persistent,
	}
	if network == "tcp" {
		v.Host, v.Port = p.Host, p.Port
	}
	if p.Password != "" {
		v.Password = maskedPassword
	}
	return v
}

func CreateJsonResp(code int, msg string) CommonJsonResp {
	return CommonJsonResp{
		Code: code,
		Msg:  msg,
	}
}

func CreateSuccessJsonResp() CommonJsonResp {
	return CommonJsonResp{
		Code: http.StatusOK,
		Msg:  "success",
	}
}

func CreateDataJsonResp(data interface{}) CommonJsonResp {
	resp := CreateSuccessJsonResp()
	resp.Data = data
	return resp
}
