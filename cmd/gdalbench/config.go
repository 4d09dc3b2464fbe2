package main

import (
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/gdal-async/gdal"
)

// benchConfig is the scenario file format.
type benchConfig struct {
	Runtime gdal.Config `yaml:"runtime"`

	// MemoryLimit caps each dataset heap, e.g. "256MiB".
	MemoryLimit string `yaml:"memory_limit"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	BlockY int `yaml:"block_y"`

	LongTask   time.Duration `yaml:"long_task"`
	ShortTasks int           `yaml:"short_tasks"`

	Scenarios []string `yaml:"scenarios"`
}

func defaultConfig() benchConfig {
	return benchConfig{
		Runtime:    gdal.Config{Workers: 4, HighWaterMark: gdal.DefaultHighWaterMark},
		Width:      1024,
		Height:     1024,
		BlockY:     64,
		LongTask:   500 * time.Millisecond,
		ShortTasks: 10,
		Scenarios:  []string{scenarioTwoGroup, scenarioCopy, scenarioCalc},
	}
}

func loadConfig(path string) (benchConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *benchConfig) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid raster size %dx%d", c.Width, c.Height)
	}
	if c.ShortTasks <= 0 {
		return fmt.Errorf("short_tasks must be positive")
	}
	for _, s := range c.Scenarios {
		if _, ok := scenarios[s]; !ok {
			return fmt.Errorf("unknown scenario %q", s)
		}
	}
	return nil
}

// options turns the config into runtime options.
func (c *benchConfig) options() ([]gdal.Option, error) {
	opts := []gdal.Option{gdal.WithConfig(c.Runtime)}
	if c.MemoryLimit != "" {
		n, err := units.RAMInBytes(c.MemoryLimit)
		if err != nil {
			return nil, fmt.Errorf("memory_limit: %w", err)
		}
		opts = append(opts, gdal.WithMemoryLimit(uint32((n+65535)/65536)))
	}
	return opts, nil
}

// rasterBytes returns the in-memory size of one band of the raster.
func (c *benchConfig) rasterBytes() int64 {
	return int64(c.Width) * int64(c.Height) * 8
}
