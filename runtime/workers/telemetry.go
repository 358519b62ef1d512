package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/contract"
	"chat-relay/observability"
)

var _ contract.Worker = (*TelemetryWorker)(nil)

// TelemetryWorker samples the process's own CPU and RSS into the monitor
// at a fixed interval, feeding the debug dashboard.
type TelemetryWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitor *observability.Monitor, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, monitor: monitor, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cpuPct, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Failed to sample CPU", "error", err)
				continue
			}
			memInfo, err := proc.MemoryInfo()
			if err != nil {
				w.log.Error("Failed to sample memory", "error", err)
				continue
			}
			w.monitor.SetProcessStats(cpuPct, memInfo.RSS/1024/1024)
		}
	}
}
