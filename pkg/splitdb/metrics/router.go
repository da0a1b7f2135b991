package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ConnEventOpened = "opened"
	ConnEventClosed = "closed"
	ConnEventFailed = "failed"
)

var (
	QueryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelRouter,
			Name:      "query_total",
			Help:      "Counter of routed queries.",
		}, []string{LblRole, LblSQLType, LblResult})

	QueryDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelRouter,
			Name:      "query_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of routed queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 29), // 0.5ms ~ 1.5days
		}, []string{LblRole, LblSQLType})

	ErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelExecutor,
			Name:      "error_total",
			Help:      "Counter of terminal errors by kind.",
		}, []string{LblKind})

	RetryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelExecutor,
			Name:      "retry_total",
			Help:      "Counter of statements retried after a lost connection.",
		}, []string{LblRole})

	ConnEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelConn,
			Name:      "event_total",
			Help:      "Counter of connection events.",
		}, []string{LblRole, LblEvent})

	ConnGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelConn,
			Name:      "connections",
			Help:      "Number of open connections per role.",
		}, []string{LblRole})

	ConnectDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelConn,
			Name:      "connect_duration_seconds",
			Help:      "Bucketed histogram of connect time (s) including session setup.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
		}, []string{LblRole, LblResult})

	TxnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelTxn,
			Name:      "op_total",
			Help:      "Counter of transaction operations.",
		}, []string{LblOp, LblResult})

	TxnDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ModuleSplitDB,
			Subsystem: LabelTxn,
			Name:      "op_duration_seconds",
			Help:      "Bucketed histogram of transaction operation time (s).",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
		}, []string{LblOp})
)
