package metrics

import (
	"github.com/hollowfs/vfscore/pkg/vfs"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fileMetrics is the Prometheus implementation of vfs.Metrics.
//
// It collects, per FileService operation and scheme:
//   - total calls
//   - total failures, broken down by vfserrors.Code
//   - write-queue depth and active watch-session count
type fileMetrics struct {
	operationsTotal *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	watchSessions   prometheus.Gauge
}

// NewFileMetrics creates a new Prometheus-backed vfs.Metrics instance.
//
// Returns vfs.NopMetrics if metrics are not enabled (InitRegistry not
// called), so callers can always wire the result into NewFileService
// without a nil check.
func NewFileMetrics() vfs.Metrics {
	if !IsEnabled() {
		return vfs.NopMetrics
	}

	reg := GetRegistry()

	return &fileMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vfscore_operations_total",
			Help: "Total FileService operations, by operation and URI scheme.",
		}, []string{"op", "scheme"}),
		errorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vfscore_operation_errors_total",
			Help: "Total FileService operation failures, by operation, scheme, and error code.",
		}, []string{"op", "scheme", "code"}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vfscore_write_queue_depth",
			Help: "Number of distinct resources with an in-flight or queued write.",
		}),
		watchSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vfscore_watch_sessions",
			Help: "Number of distinct active watch sessions, shared across subscribers.",
		}),
	}
}

func (m *fileMetrics) ObserveOperation(op, scheme string, err error) {
	m.operationsTotal.WithLabelValues(op, scheme).Inc()
	if err != nil {
		m.errorsTotal.WithLabelValues(op, scheme, vfserrors.CodeOf(err).String()).Inc()
	}
}

func (m *fileMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *fileMetrics) SetWatchSessions(count int) {
	m.watchSessions.Set(float64(count))
}
