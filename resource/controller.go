package resource

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxWorkers is the maximum number of concurrent extraction jobs.
	// If 0, defaults to GOMAXPROCS.
	MaxWorkers int64

	// InFlightBytes caps the image bytes held by workers at once.
	// If 0, no hard limit is enforced (only tracking).
	InFlightBytes int64

	// DownloadBytesPerSec is the maximum download throughput for remote
	// datasets. If 0, unlimited.
	DownloadBytesPerSec int64
}

// Controller manages build-time resources: worker slots, buffered image
// bytes and download bandwidth.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	workerSem *semaphore.Weighted

	// IO
	downloadLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = int64(runtime.GOMAXPROCS(0))
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.InFlightBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.InFlightBytes)
	}

	if cfg.DownloadBytesPerSec > 0 {
		c.downloadLimiter = rate.NewLimiter(rate.Limit(cfg.DownloadBytesPerSec), int(cfg.DownloadBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	return c.cfg
}

// Workers returns the number of worker slots.
func (c *Controller) Workers() int {
	return int(c.cfg.MaxWorkers)
}

// AcquireMemory reserves bytes of the in-flight budget, blocking until
// enough is released or ctx is canceled. Requests larger than the whole
// budget are clamped to it so a single huge image cannot deadlock a build.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, c.clamp(bytes)); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(c.clamp(bytes)) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(c.clamp(bytes))
	}
	c.memUsed.Add(-bytes)
}

func (c *Controller) clamp(bytes int64) int64 {
	return min(bytes, c.cfg.InFlightBytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	return c.memUsed.Load()
}

// AcquireWorker reserves a worker slot. Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	return c.workerSem.Acquire(ctx, 1)
}

// TryAcquireWorker attempts to reserve a worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	return c.workerSem.TryAcquire(1)
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	c.workerSem.Release(1)
}

// AcquireDownload waits until the download limit allows n bytes.
func (c *Controller) AcquireDownload(ctx context.Context, n int) error {
	if c == nil || c.downloadLimiter == nil {
		return nil
	}
	burst := c.downloadLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.downloadLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
