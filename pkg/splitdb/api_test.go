package splitdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/profile"
	"github.com/gin-gonic/gin"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

type memConfigCenter struct {
	conns map[string]*config.Connection
	err   error
}

func (m *memConfigCenter) GetConnection(name string) (*config.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.conns[name]
	if !ok {
		return nil, errors.WithMessage(profile.ErrConnectionNotFound, name)
	}
	return c, nil
}

func (m *memConfigCenter) ListConnections() (map[string]*config.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.conns, nil
}

func (m *memConfigCenter) Close() {}

type connectionsResp struct {
	Code int               `json:"code"`
	Msg  string            `json:"msg"`
	Data []*ConnectionView `json:"data"`
}

type connectionResp struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data *ConnectionView `json:"data"`
}

type routerResp struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data *RouterView `json:"data"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApiServer(t *testing.T, cc *memConfigCenter, adminCfg config.AdminServer) *HttpApiServer {
	adminCfg.Addr = "127.0.0.1:0"
	s, err := CreateHttpApiServer(cc, &config.SplitDB{AdminServer: adminCfg})
	require.NoError(t, err)
	t.Cleanup(func() { s.listener.Close() })
	return s
}

func newTestConfigCenter() *memConfigCenter {
	return &memConfigCenter{conns: map[string]*config.Connection{
		config.DefaultConnectionName:  {Host: "primary", Port: 3306, Username: "magento", Password: "secret", DBName: "shop"},
		config.ReadOnlyConnectionName: {Host: "replica:3307", Username: "magento", DBName: "shop"},
	}}
}

func serve(s *HttpApiServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestApiListConnections(t *testing.T) {
	s := newTestApiServer(t, newTestConfigCenter(), config.AdminServer{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/connections", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp connectionsResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, resp.Data, 2)
	require.Equal(t, config.DefaultConnectionName, resp.Data[0].Name)
	require.Equal(t, maskedPassword, resp.Data[0].Password)
	require.Equal(t, config.ReadOnlyConnectionName, resp.Data[1].Name)
	require.Equal(t, "", resp.Data[1].Password)
}

func TestApiGetConnection(t *testing.T) {
	cc := newTestConfigCenter()
	s := newTestApiServer(t, cc, config.AdminServer{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/connections/default", nil))
	var resp connectionResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "primary", resp.Data.Host)
	require.Equal(t, 3306, resp.Data.Port)
	require.Equal(t, maskedPassword, resp.Data.Password)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/admin/connections/indexer", nil))
	resp = connectionResp{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Nil(t, resp.Data)

	cc.err = errors.New("etcd unavailable")
	w = serve(s, httptest.NewRequest(http.MethodGet, "/admin/connections/default", nil))
	resp = connectionResp{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestApiRouter(t *testing.T) {
	cc := newTestConfigCenter()
	s := newTestApiServer(t, cc, config.AdminServer{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/router", nil))
	var resp routerResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, resp.Data.Split)
	require.Equal(t, "primary", resp.Data.Write.Host)
	require.Equal(t, maskedPassword, resp.Data.Write.Password)
	require.Equal(t, "replica", resp.Data.Read.Host)
	require.Equal(t, 3307, resp.Data.Read.Port)

	delete(cc.conns, config.ReadOnlyConnectionName)
	w = serve(s, httptest.NewRequest(http.MethodGet, "/admin/router", nil))
	resp = routerResp{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Data.Split)
	require.Nil(t, resp.Data.Read)

	delete(cc.conns, config.DefaultConnectionName)
	w = serve(s, httptest.NewRequest(http.MethodGet, "/admin/router", nil))
	resp = routerResp{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestApiBasicAuth(t *testing.T) {
	s := newTestApiServer(t, newTestConfigCenter(), config.AdminServer{EnableBasicAuth: true, User: "admin", Password: "pass"})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/connections", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/connections", nil)
	req.SetBasicAuth("admin", "pass")
	w = serve(s, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/metrics/", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
