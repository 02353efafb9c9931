package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ProgressTracker tracks progress for long-running operations
type ProgressTracker struct {
	totalBytes  int64
	startTime   time.Time
	description string
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(totalBytes int64, description string) *ProgressTracker {
	return &ProgressTracker{
		totalBytes:  totalBytes,
		startTime:   time.Now(),
		description: description,
	}
}

// Progress holds current progress information
type Progress struct {
	Current     int64
	Total       int64
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	Throughput  float64 // units per second
	Description string
}

// Calculate returns progress given an element count and the input bytes consumed
func (p *ProgressTracker) Calculate(currentCount, bytesProcessed int64) Progress {
	return p.calculateAt(time.Since(p.startTime), currentCount, bytesProcessed)
}

func (p *ProgressTracker) calculateAt(elapsed time.Duration, currentCount, bytesProcessed int64) Progress {
	var percentage float64
	var eta time.Duration

	if p.totalBytes > 0 && bytesProcessed > 0 {
		percentage = float64(bytesProcessed) / float64(p.totalBytes) * 100
		if percentage < 100 && elapsed > 0 {
			bytesPerSecond := float64(bytesProcessed) / elapsed.Seconds()
			eta = time.Duration(float64(p.totalBytes-bytesProcessed) / bytesPerSecond * float64(time.Second))
		}
	}

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(currentCount) / elapsed.Seconds()
	}

	return Progress{
		Current:     currentCount,
		Total:       p.totalBytes,
		Percentage:  percentage,
		Elapsed:     elapsed.Round(time.Second),
		ETA:         eta.Round(time.Second),
		Throughput:  throughput,
		Description: p.description,
	}
}

// Fields renders the progress as log fields
func (p Progress) Fields(bytesProcessed int64) []zap.Field {
	return []zap.Field{
		zap.String("stage", p.Description),
		zap.String("elements", humanize.Comma(p.Current)),
		zap.String("processed", humanize.IBytes(uint64(bytesProcessed))),
		zap.String("total", humanize.IBytes(uint64(p.Total))),
		zap.String("percent", fmt.Sprintf("%.1f%%", p.Percentage)),
		zap.String("throughput", FormatThroughput(p.Throughput)),
		zap.String("eta", FormatETA(p.ETA)),
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}
	return d.Round(time.Second).String()
}

// FormatThroughput formats elements per second with an SI prefix
func FormatThroughput(perSec float64) string {
	return humanize.SIWithDigits(perSec, 1, "/s")
}

// byteCounter reports how much of the input has been consumed
type byteCounter interface {
	FullyScannedBytes() int64
}

// reportProgress logs progress every interval until ctx is done
func reportProgress(ctx context.Context, log *zap.Logger, interval time.Duration, tracker *ProgressTracker, scanned byteCounter, count func() int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := scanned.FullyScannedBytes()
			log.Info("Progress", tracker.Calculate(count(), n).Fields(n)...)
		}
	}
}
