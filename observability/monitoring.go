// Package observability aggregates in-process delivery metrics for the
// debug endpoint. Counters are atomic; no metric ever sits on the hot
// delivery path behind a lock.
package observability

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor collects counters from the router and session layer plus
// process-level stats sampled by the telemetry worker.
type Monitor struct {
	MessagesStored uint64
	Delivered      uint64
	Dropped        uint64
	DeliveryErrors uint64
	JoinEvents     uint64
	LeaveEvents    uint64

	mu        sync.RWMutex
	cpuPct    float64
	rssMB     uint64
	sampledAt time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) IncrStored()        { atomic.AddUint64(&m.MessagesStored, 1) }
func (m *Monitor) IncrDelivered()     { atomic.AddUint64(&m.Delivered, 1) }
func (m *Monitor) IncrDropped()       { atomic.AddUint64(&m.Dropped, 1) }
func (m *Monitor) IncrDeliveryError() { atomic.AddUint64(&m.DeliveryErrors, 1) }
func (m *Monitor) IncrJoin()          { atomic.AddUint64(&m.JoinEvents, 1) }
func (m *Monitor) IncrLeave()         { atomic.AddUint64(&m.LeaveEvents, 1) }

// SetProcessStats is fed by the telemetry worker.
func (m *Monitor) SetProcessStats(cpuPct float64, rssMB uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuPct = cpuPct
	m.rssMB = rssMB
	m.sampledAt = time.Now().UTC()
}

// Stats snapshots everything for the debug server dashboard.
func (m *Monitor) Stats() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.RLock()
	cpu, rss, at := m.cpuPct, m.rssMB, m.sampledAt
	m.mu.RUnlock()

	return map[string]any{
		"messages_stored": atomic.LoadUint64(&m.MessagesStored),
		"delivered":       atomic.LoadUint64(&m.Delivered),
		"dropped":         atomic.LoadUint64(&m.Dropped),
		"delivery_errors": atomic.LoadUint64(&m.DeliveryErrors),
		"join_events":     atomic.LoadUint64(&m.JoinEvents),
		"leave_events":    atomic.LoadUint64(&m.LeaveEvents),
		"alloc_mem_mb":    mem.Alloc / 1024 / 1024,
		"num_gc":          mem.NumGC,
		"proc_cpu_pct":    cpu,
		"proc_rss_mb":     rss,
		"sampled_at":      at.Format(time.RFC3339),
	}
}
