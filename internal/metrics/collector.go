// Package metrics logs process and system resource usage while a
// long-running command works, together with any pipeline counters
// registered through Track.
package metrics

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot holds one sample
type Snapshot struct {
	CPUPercent        float64 // system-wide, 0-100
	ProcessCPUPercent float64 // per core, exceeds 100 on several cores
	IOWaitPercent     float64
	ProcessRSS        uint64
	MemoryUsed        uint64
	MemoryTotal       uint64
	MemoryPercent     float64
	DiskReadPerSec    float64 // bytes
	DiskWritePerSec   float64 // bytes
	Counters          map[string]int64
	CounterRates      map[string]float64 // per second since the previous sample
	Timestamp         time.Time
}

// Collector periodically samples and logs resource usage
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastCPU   cpu.TimesStat
	hasCPU    bool
	lastDisk  map[string]disk.IOCountersStat
	lastTime  time.Time
	lastCount map[string]int64

	mu       sync.RWMutex
	tracked  map[string]func() int64
	snapshot *Snapshot
}

// NewCollector creates a collector logging every interval
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval:  interval,
		logger:    logger,
		proc:      proc,
		tracked:   make(map[string]func() int64),
		lastCount: make(map[string]int64),
	}
}

// Track adds a monotonically increasing counter to every sample
func (c *Collector) Track(name string, read func() int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked[name] = read
}

// Start samples until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample sets the CPU and disk baselines
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Last returns the most recent sample, nil before the first one
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Collector) collect() {
	now := time.Now()
	s := &Snapshot{Timestamp: now}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSS = info.RSS
		}
	}
	if times, err := cpu.Times(false); err == nil && len(times) > 0 {
		if c.hasCPU {
			s.IOWaitPercent = ioWait(c.lastCPU, times[0])
		}
		c.lastCPU, c.hasCPU = times[0], true
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vmem.UsedPercent
		s.MemoryUsed = vmem.Used
		s.MemoryTotal = vmem.Total
	}

	elapsed := now.Sub(c.lastTime).Seconds()
	if counters, err := disk.IOCounters(); err == nil {
		if c.lastDisk != nil && elapsed > 0.1 {
			read, written := diskDelta(c.lastDisk, counters)
			s.DiskReadPerSec = float64(read) / elapsed
			s.DiskWritePerSec = float64(written) / elapsed
		}
		c.lastDisk = counters
	}

	c.mu.Lock()
	s.Counters = make(map[string]int64, len(c.tracked))
	s.CounterRates = make(map[string]float64, len(c.tracked))
	for name, read := range c.tracked {
		v := read()
		s.Counters[name] = v
		if prev, ok := c.lastCount[name]; ok && elapsed > 0 {
			s.CounterRates[name] = rate(prev, v, elapsed)
		}
		c.lastCount[name] = v
	}
	c.snapshot = s
	c.mu.Unlock()
	c.lastTime = now

	c.logger.Info("System metrics", s.fields()...)
}

func (s *Snapshot) fields() []zap.Field {
	fields := []zap.Field{
		zap.Float64("sys_cpu", s.CPUPercent),
		zap.Float64("proc_cpu", s.ProcessCPUPercent),
		zap.Float64("iowait", s.IOWaitPercent),
		zap.String("rss", humanize.IBytes(s.ProcessRSS)),
		zap.Float64("mem_pct", s.MemoryPercent),
		zap.String("mem_used", humanize.IBytes(s.MemoryUsed)),
		zap.String("disk_r", humanize.IBytes(uint64(s.DiskReadPerSec))+"/s"),
		zap.String("disk_w", humanize.IBytes(uint64(s.DiskWritePerSec))+"/s"),
	}
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, zap.String(name, humanize.Comma(s.Counters[name])))
		if r, ok := s.CounterRates[name]; ok {
			fields = append(fields, zap.String(name+"_rate", humanize.SIWithDigits(r, 1, "/s")))
		}
	}
	return fields
}

// ioWait is the share of CPU time spent waiting for I/O between two samples
func ioWait(last, cur cpu.TimesStat) float64 {
	total := (cur.User - last.User) +
		(cur.System - last.System) +
		(cur.Idle - last.Idle) +
		(cur.Iowait - last.Iowait) +
		(cur.Irq - last.Irq) +
		(cur.Softirq - last.Softirq) +
		(cur.Steal - last.Steal)
	if total <= 0 {
		return 0
	}
	return (cur.Iowait - last.Iowait) / total * 100
}

// diskDelta sums bytes read and written since the previous counters
// Devices that appeared or whose counters wrapped are skipped.
func diskDelta(last, cur map[string]disk.IOCountersStat) (read, written uint64) {
	for name, c := range cur {
		l, ok := last[name]
		if !ok {
			continue
		}
		if c.ReadBytes >= l.ReadBytes {
			read += c.ReadBytes - l.ReadBytes
		}
		if c.WriteBytes >= l.WriteBytes {
			written += c.WriteBytes - l.WriteBytes
		}
	}
	return read, written
}

func rate(prev, cur int64, seconds float64) float64 {
	if seconds <= 0 || cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}
