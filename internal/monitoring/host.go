package monitoring

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// HostReading holds instantaneous utilization and raw cumulative I/O counters.
type HostReading struct {
	CPUPercent    float64
	MemoryPercent float64

	DiskOK    bool
	DiskRead  uint64
	DiskWrite uint64

	NetOK   bool
	NetSent uint64
	NetRecv uint64
}

// HostSampler reads host resource counters.
type HostSampler interface {
	Read(ctx context.Context) HostReading
}

// SystemHost reads the local machine through gopsutil.
type SystemHost struct{}

// Read never fails as a whole; each unreadable counter is marked unavailable.
func (SystemHost) Read(ctx context.Context) HostReading {
	r := HostReading{CPUPercent: Unavailable, MemoryPercent: Unavailable}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		r.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		r.MemoryPercent = vm.UsedPercent
	}
	if counters, err := disk.IOCountersWithContext(ctx); err == nil && len(counters) > 0 {
		for _, c := range counters {
			r.DiskRead += c.ReadBytes
			r.DiskWrite += c.WriteBytes
		}
		r.DiskOK = true
	}
	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		r.NetSent = counters[0].BytesSent
		r.NetRecv = counters[0].BytesRecv
		r.NetOK = true
	}
	return r
}

// counterDelta returns cur-prev, or Unavailable when either side is missing
// or the counter went backwards.
func counterDelta(prev, cur uint64, prevOK, curOK bool) float64 {
	if !prevOK || !curOK || cur < prev {
		return Unavailable
	}
	return float64(cur - prev)
}
