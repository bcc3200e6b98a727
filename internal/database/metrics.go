package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshot is a point-in-time copy of the pool counters
type PoolSnapshot struct {
	AcquiredConns     int32
	IdleConns         int32
	TotalConns        int32
	MaxConns          int32
	AcquireCount      int64
	AcquireDuration   time.Duration
	EmptyAcquireCount int64
	CanceledAcquires  int64
}

// Snapshot reads the pool's current statistics
func (db *DB) Snapshot() PoolSnapshot {
	stat := db.Pool.Stat()
	return PoolSnapshot{
		AcquiredConns:     stat.AcquiredConns(),
		IdleConns:         stat.IdleConns(),
		TotalConns:        stat.TotalConns(),
		MaxConns:          stat.MaxConns(),
		AcquireCount:      stat.AcquireCount(),
		AcquireDuration:   stat.AcquireDuration(),
		EmptyAcquireCount: stat.EmptyAcquireCount(),
		CanceledAcquires:  stat.CanceledAcquireCount(),
	}
}

// PoolCollector exports pool statistics on every scrape
type PoolCollector struct {
	snapshot func() PoolSnapshot

	acquired        *prometheus.Desc
	idle            *prometheus.Desc
	total           *prometheus.Desc
	max             *prometheus.Desc
	acquireCount    *prometheus.Desc
	acquireDuration *prometheus.Desc
	emptyAcquires   *prometheus.Desc
	canceled        *prometheus.Desc
}

func NewPoolCollector(snapshot func() PoolSnapshot) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("warden_db_pool_"+name, help, nil, nil)
	}

	return &PoolCollector{
		snapshot:        snapshot,
		acquired:        desc("acquired_connections", "Connections currently checked out"),
		idle:            desc("idle_connections", "Idle connections in the pool"),
		total:           desc("total_connections", "All connections in the pool"),
		max:             desc("max_connections", "Configured pool size"),
		acquireCount:    desc("acquire_count_total", "Successful connection acquires"),
		acquireDuration: desc("acquire_duration_seconds_total", "Time spent waiting to acquire connections"),
		emptyAcquires:   desc("empty_acquire_count_total", "Acquires that had to wait for a free connection"),
		canceled:        desc("canceled_acquire_count_total", "Acquires cancelled by their context"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.acquireDuration
	ch <- c.emptyAcquires
	ch <- c.canceled
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.acquireDuration, prometheus.CounterValue, s.AcquireDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(s.EmptyAcquireCount))
	ch <- prometheus.MustNewConstMetric(c.canceled, prometheus.CounterValue, float64(s.CanceledAcquires))
}
