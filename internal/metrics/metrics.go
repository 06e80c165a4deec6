// ============================================================================
// Mission Planner Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露規劃引擎的運行指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 計數器 (Counter)：
//      - planner_transitions_total{event,outcome}: 狀態轉換次數
//        outcome = success | rejected | error
//      - planner_assessments_total: 資源評估次數
//      - planner_oracle_failures_total: 單位可用性查詢失敗次數
//
//   2. 分佈 (Histogram)：
//      - planner_readiness_score: 評估產出的戰備分數分佈（0~1）
//      - planner_transition_duration_seconds{event}: 轉換處理時間
//
//   3. 瞬時值 (Gauge)：
//      - planner_active_sessions: 目前存活的規劃會話數
//
// Prometheus 查詢示例:
//
//   # 核准被戰備分數擋下的比例
//   rate(planner_transitions_total{event="approve",outcome="rejected"}[15m])
//     / rate(planner_transitions_total{event="approve"}[15m])
//
//   # 單位查詢失敗率
//   rate(planner_oracle_failures_total[5m]) / rate(planner_assessments_total[5m])
//
// 所有方法對 nil *Collector 安全，未啟用監控時可直接傳 nil。
//
// ============================================================================

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 轉換結果標籤
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector Prometheus 指標收集器
type Collector struct {
	transitions     *prometheus.CounterVec
	transitionTime  *prometheus.HistogramVec
	assessments     prometheus.Counter
	oracleFailures  prometheus.Counter
	readinessScores prometheus.Histogram
	activeSessions  prometheus.Gauge
}

// NewCollector 創建指標收集器並註冊到 prometheus.DefaultRegisterer
func NewCollector() *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer)
}

// NewCollectorWith 創建指標收集器並註冊到指定的 Registerer。
// 重複註冊會 panic：一個 registry 只應有一個 collector。
func NewCollectorWith(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_transitions_total",
			Help: "Planning state transitions by event and outcome",
		}, []string{"event", "outcome"}),
		transitionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_transition_duration_seconds",
			Help:    "Time spent handling a planning transition",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		assessments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_assessments_total",
			Help: "Total number of resource allocation assessments",
		}),
		oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_oracle_failures_total",
			Help: "Unit availability lookups that failed and were recorded as risk factors",
		}),
		readinessScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_readiness_score",
			Help:    "Readiness scores produced by assessments",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_active_sessions",
			Help: "Current number of live planning sessions",
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.transitionTime,
		c.assessments,
		c.oracleFailures,
		c.readinessScores,
		c.activeSessions,
	)

	return c
}

// RecordTransition 記錄一次狀態轉換及其耗時
func (c *Collector) RecordTransition(event, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(event, outcome).Inc()
	c.transitionTime.WithLabelValues(event).Observe(elapsed.Seconds())
}

// RecordAssessment 記錄一次評估與其戰備分數
func (c *Collector) RecordAssessment(score float64) {
	if c == nil {
		return
	}
	c.assessments.Inc()
	c.readinessScores.Observe(score)
}

// RecordOracleFailure 記錄單位可用性查詢失敗
func (c *Collector) RecordOracleFailure() {
	if c == nil {
		return
	}
	c.oracleFailures.Inc()
}

// SetActiveSessions 更新存活會話數
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.activeSessions.Set(float64(n))
}

// NewServer 建立暴露 /metrics 的 HTTP 伺服器（由呼叫端負責啟動與關閉）
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
