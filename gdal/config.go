package gdal

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/native"
)

// DefaultHighWaterMark is the default number of stream tasks in flight.
const DefaultHighWaterMark = 4

// Config holds configuration for runtime creation
type Config struct {
	// Library is the native library to drive. Nil starts the in-memory
	// driver, owned and shut down by the runtime.
	Library native.Library `yaml:"-"`

	// Logger receives logs from every layer. Nil keeps the no-op loggers.
	Logger *zap.Logger `yaml:"-"`

	// Workers is the size of the worker pool. It bounds how many native
	// calls run at once across all datasets, independently of how many
	// datasets are open. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// HighWaterMark is the default number of in-flight tasks per stream.
	HighWaterMark int `yaml:"high_water_mark"`

	// MemoryLimitPages caps each in-memory dataset heap in 64KB pages.
	// 0 means default (65536 pages = 4GB). Ignored when Library is set.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// BlockX and BlockY are the default block size of created datasets.
	// 0 means full-width blocks of one row.
	BlockX int `yaml:"block_x"`
	BlockY int `yaml:"block_y"`
}

// Option configures a runtime.
type Option func(*Config)

// WithLibrary drives lib instead of the in-memory driver.
func WithLibrary(lib native.Library) Option {
	return func(c *Config) { c.Library = lib }
}

// WithLogger sets the logger for every layer.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithHighWaterMark sets the default stream backpressure threshold.
func WithHighWaterMark(n int) Option {
	return func(c *Config) { c.HighWaterMark = n }
}

// WithMemoryLimit caps in-memory dataset heaps, in 64KB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(c *Config) { c.MemoryLimitPages = pages }
}

// WithBlockSize sets the default block size of created datasets.
func WithBlockSize(x, y int) Option {
	return func(c *Config) { c.BlockX, c.BlockY = x, y }
}

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
}
