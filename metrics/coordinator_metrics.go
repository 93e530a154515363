package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kafka_group"

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

var (
	GroupCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "group_count")},
	)
	RebalancePreparedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "rebalance_prepared_total")},
	)
	RebalanceCompletedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "rebalance_completed_total")},
	)
	SessionExpiredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "session_expired_total")},
	)
	JoinGroupSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "join_group_success_total")},
	)
	JoinGroupFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "join_group_fail_total")},
	)
	JoinGroupLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "coordinator", "join_group_latency_ms"),
			Objectives: objectives},
	)
	SyncGroupSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "sync_group_success_total")},
	)
	SyncGroupFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "sync_group_fail_total")},
	)
	SyncGroupLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "coordinator", "sync_group_latency_ms"),
			Objectives: objectives},
	)
	HeartbeatSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "heartbeat_success_total")},
	)
	HeartbeatFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "heartbeat_fail_total")},
	)
	HeartbeatLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "coordinator", "heartbeat_latency_ms"),
			Objectives: objectives},
	)
	LeaveGroupSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "leave_group_success_total")},
	)
	LeaveGroupFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "leave_group_fail_total")},
	)
	LeaveGroupLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "coordinator", "leave_group_latency_ms"),
			Objectives: objectives},
	)
	OffsetCommitSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "offset_commit_success_total")},
	)
	OffsetCommitFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "offset_commit_fail_total")},
	)
	OffsetCommitLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "coordinator", "offset_commit_latency_ms"),
			Objectives: objectives},
	)
	OffsetFetchSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "offset_fetch_success_total")},
	)
	OffsetFetchFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "coordinator", "offset_fetch_fail_total")},
	)
	OffsetFetchLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "coordinator", "offset_fetch_latency_ms"),
			Objectives: objectives},
	)
)
