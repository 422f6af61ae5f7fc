// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordCheckInSuccess(timeSlotID string)
	RecordCheckInRejected(reason string)
	RecordLockWait(duration time.Duration)
	RecordLockTimeout(key string)
	RecordOptimisticConflict(resource string)
	RecordRegistrationExpired(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checkinSuccess      *prometheus.CounterVec
	checkinRejected     *prometheus.CounterVec
	lockWait            prometheus.Histogram
	lockTimeout         *prometheus.CounterVec
	optimisticConflict  *prometheus.CounterVec
	registrationExpired prometheus.Counter
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkinSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotman_checkin_success_total",
			Help: "チェックイン成功の合計数（スロット別）",
		}, []string{"time_slot_id"}),
		checkinRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotman_checkin_rejected_total",
			Help: "チェックイン拒否の合計数（理由別）",
		}, []string{"reason"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotman_lock_wait_seconds",
			Help:    "セッションロック取得までの待機時間（秒）",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 3, 5},
		}),
		lockTimeout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotman_lock_timeout_total",
			Help: "ロック取得タイムアウトの合計数（キー別）",
		}, []string{"key"}),
		optimisticConflict: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotman_optimistic_conflict_total",
			Help: "楽観ロックのバージョン競合の合計数（リソース別）",
		}, []string{"resource"}),
		registrationExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotman_registration_expired_total",
			Help: "期限切れ処理された会員登録の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.checkinSuccess,
		c.checkinRejected,
		c.lockWait,
		c.lockTimeout,
		c.optimisticConflict,
		c.registrationExpired,
		c.httpStatus,
	)

	return c
}

// RecordCheckInSuccess はチェックイン成功を記録する。
func (c *Collector) RecordCheckInSuccess(timeSlotID string) {
	c.checkinSuccess.WithLabelValues(timeSlotID).Inc()
}

// RecordCheckInRejected はチェックイン拒否を理由別に記録する。
func (c *Collector) RecordCheckInRejected(reason string) {
	c.checkinRejected.WithLabelValues(reason).Inc()
}

// RecordLockWait はロック取得までの待機時間を記録する。
func (c *Collector) RecordLockWait(duration time.Duration) {
	c.lockWait.Observe(duration.Seconds())
}

// RecordLockTimeout はロック取得タイムアウトを記録する。
func (c *Collector) RecordLockTimeout(key string) {
	c.lockTimeout.WithLabelValues(key).Inc()
}

// RecordOptimisticConflict は楽観ロックのバージョン競合を記録する。
func (c *Collector) RecordOptimisticConflict(resource string) {
	c.optimisticConflict.WithLabelValues(resource).Inc()
}

// RecordRegistrationExpired は期限切れ処理された登録数を記録する。
func (c *Collector) RecordRegistrationExpired(count int) {
	c.registrationExpired.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。テストで使用する。
type Nop struct{}

func (Nop) RecordCheckInSuccess(timeSlotID string)       {}
func (Nop) RecordCheckInRejected(reason string)          {}
func (Nop) RecordLockWait(duration time.Duration)        {}
func (Nop) RecordLockTimeout(key string)                 {}
func (Nop) RecordOptimisticConflict(resource string)     {}
func (Nop) RecordRegistrationExpired(count int)          {}
func (Nop) RecordHTTPStatus(statusCode int)              {}

var _ MetricsCollector = (*Collector)(nil)
var _ MetricsCollector = Nop{}
