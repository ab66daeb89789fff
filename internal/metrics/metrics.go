// Package metrics 定义服务的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fastlink"

var (
	// Resolutions 按来源 (cache/store) 与结果统计短码解析
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "短码解析次数",
	}, []string{"source", "result"})

	// CacheErrors 缓存操作失败次数
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_errors_total",
		Help:      "缓存操作失败次数",
	}, []string{"op"})

	// CodeCollisions 生成短码时被数据库唯一约束拒绝的次数
	CodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "code_collisions_total",
		Help:      "短码写入数据库时发生冲突的次数",
	})

	// SweepRuns 过期清理执行次数
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "过期清理执行次数",
	}, []string{"result"})

	// SweepMigrated 被迁移到归档表的映射数量
	SweepMigrated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_migrated_total",
		Help:      "过期清理迁移的映射数量",
	})

	// UsageJobs 访问记录任务结果: recorded / failed / dropped
	UsageJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "usage_jobs_total",
		Help:      "访问记录任务数量",
	}, []string{"outcome"})
)
