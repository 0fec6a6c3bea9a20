package propstore

import (
	"github.com/hupe1980/propstore/internal/compress"
)

const (
	// DefaultPartitionSize is the row capacity of a fresh partition.
	DefaultPartitionSize = 4096
	// DefaultCacheCapacity is the number of partitions kept resident.
	DefaultCacheCapacity = 64
	// DefaultFlushConcurrency bounds parallel saves during FlushAll.
	DefaultFlushConcurrency = 4
)

// Compression selects the codec for partition file sections.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

type options struct {
	partitionSize    int
	cacheCapacity    int
	compression      Compression
	waitForRelease   bool
	flushConcurrency int
	ioLimit          int64
	logger           *Logger
	metricsCollector MetricsCollector
}

func defaultOptions() options {
	return options{
		partitionSize:    DefaultPartitionSize,
		cacheCapacity:    DefaultCacheCapacity,
		compression:      CompressionLZ4,
		flushConcurrency: DefaultFlushConcurrency,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures Open.
type Option func(*options)

// WithPartitionSize sets the row capacity of newly created partitions.
// Partitions loaded from a file keep at least the capacity they were saved with.
func WithPartitionSize(rows int) Option {
	return func(o *options) {
		if rows > 0 {
			o.partitionSize = rows
		}
	}
}

// WithCacheCapacity sets how many partitions may be resident at once.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheCapacity = n
		}
	}
}

// WithCompression sets the section codec for saved partitions.
// Sections that do not compress well are stored raw regardless.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithWaitForRelease makes operations block, instead of failing with
// ErrResourceExhausted, when every resident partition is in use.
// The wait ends when a partition is released or the context is done.
func WithWaitForRelease(wait bool) Option {
	return func(o *options) {
		o.waitForRelease = wait
	}
}

// WithFlushConcurrency bounds the number of partitions saved in parallel.
func WithFlushConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.flushConcurrency = n
		}
	}
}

// WithIOLimit caps save throughput in bytes per second. Zero disables the limit.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}
