package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ModuleSplitDB = "splitdb"
)

// metrics labels.
const (
	LabelRouter   = "router"
	LabelConn     = "conn"
	LabelTxn      = "txn"
	LabelExecutor = "executor"

	opSucc   = "ok"
	opFailed = "err"
)

// Label constants.
const (
	LblRole    = "role"
	LblSQLType = "sql_type"
	LblResult  = "result"
	LblKind    = "kind"
	LblOp      = "op"
	LblEvent   = "event"
)

// RetLabel returns "ok" when err == nil and "err" when err != nil.
func RetLabel(err error) string {
	if err == nil {
		return opSucc
	}
	return opFailed
}

var registerOnce sync.Once

// RegisterSplitDBMetrics registers every collector with the default registry.
// Calling it more than once is a no-op.
func RegisterSplitDBMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryCounter)
		prometheus.MustRegister(QueryDurationHistogram)
		prometheus.MustRegister(ErrorCounter)
		prometheus.MustRegister(RetryCounter)

		prometheus.MustRegister(ConnEventCounter)
		prometheus.MustRegister(ConnGauge)
		prometheus.MustRegister(ConnectDurationHistogram)

		prometheus.MustRegister(TxnCounter)
		prometheus.MustRegister(TxnDurationHistogram)
	})
}
