package diagnostics

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/shizukutanaka/Kaifuku/internal/health"
)

// Diagnostic names. The repair mapper keys off these.
const (
	CheckRendering    = "rendering_check"
	CheckBackend      = "backend_check"
	CheckModelAlpha   = "model_a_check"
	CheckModelBeta    = "model_b_check"
	CheckTransport    = "transport_check"
	CheckUI           = "ui_check"
	CheckMemoryState  = "memory_state_check"
	CheckMemory       = "memory_check"
	CheckNetwork      = "network_check"
	CheckDependencies = "dependency_check"
	CheckCPU          = "cpu_check"
	CheckDisk         = "disk_check"
	CheckGoroutines   = "goroutine_check"
)

// ThresholdFunc supplies the current value of an adaptive threshold.
// Probes read it on every run so retuned thresholds take effect without
// re-registration.
type ThresholdFunc func() float64

// ComponentProbe fails when the tracked component has dropped out of
// the healthy and degraded bands.
func ComponentProbe(monitor *health.Monitor, component health.Component) CheckFunc {
	return func(ctx context.Context) error {
		status, ok := monitor.Status(component)
		if !ok {
			return fmt.Errorf("no tracker for component %s", component)
		}
		if status.State == health.StateFailing || status.State == health.StateOffline {
			return fmt.Errorf("component %s is %s (performance %.1f)",
				component, status.State, status.Performance)
		}
		return nil
	}
}

// MemoryProbe fails when system memory usage exceeds the threshold
func MemoryProbe(threshold ThresholdFunc) CheckFunc {
	return func(ctx context.Context) error {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to read memory stats: %w", err)
		}
		if limit := threshold(); vm.UsedPercent > limit {
			return fmt.Errorf("memory usage %.1f%% exceeds threshold %.1f%%",
				vm.UsedPercent, limit)
		}
		return nil
	}
}

// CPUProbe fails when CPU utilization exceeds the threshold
func CPUProbe(threshold ThresholdFunc) CheckFunc {
	return func(ctx context.Context) error {
		percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
		if err != nil {
			return fmt.Errorf("failed to read cpu stats: %w", err)
		}
		if len(percents) == 0 {
			return nil
		}
		if limit := threshold(); percents[0] > limit {
			return fmt.Errorf("cpu usage %.1f%% exceeds threshold %.1f%%",
				percents[0], limit)
		}
		return nil
	}
}

// DiskProbe fails when disk usage at path exceeds the threshold
func DiskProbe(path string, threshold ThresholdFunc) CheckFunc {
	return func(ctx context.Context) error {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to read disk stats: %w", err)
		}
		if limit := threshold(); usage.UsedPercent > limit {
			return fmt.Errorf("disk usage %.1f%% exceeds threshold %.1f%%",
				usage.UsedPercent, limit)
		}
		return nil
	}
}

// NetworkProbe fails when a TCP dial to addr does not complete
func NetworkProbe(addr string) CheckFunc {
	return func(ctx context.Context) error {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("network unreachable via %s: %w", addr, err)
		}
		conn.Close()
		return nil
	}
}

// GoroutineProbe fails when the goroutine count exceeds the limit.
// A runaway count is the usual signature of a leaked worker.
func GoroutineProbe(limit int) CheckFunc {
	return func(ctx context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return fmt.Errorf("%d goroutines exceeds limit %d", n, limit)
		}
		return nil
	}
}
