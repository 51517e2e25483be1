// Package pagecacheconfig loads the YAML configuration for a standalone page
// cache process: pool sizing plus the ambient logger and telemetry config.
package pagecacheconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sushant-115/pagecached/pkg/logger"
	"github.com/sushant-115/pagecached/pkg/telemetry"
)

// Config is the top-level configuration for a page cache process.
type Config struct {
	// PoolSize is the number of frames the buffer pool manager owns.
	PoolSize int `yaml:"pool_size"`
	// PageSize is the size in bytes of each frame's buffer.
	PageSize int `yaml:"page_size"`
	// BucketSize is the capacity of each extendible-hash bucket in the page
	// table.
	BucketSize int `yaml:"bucket_size"`
	// DataFile is the path to the on-disk page file.
	DataFile string `yaml:"data_file"`
	// WriteRateBytesPerSec caps FileDiskManager.WritePage throughput; 0
	// disables throttling.
	WriteRateBytesPerSec int64 `yaml:"write_rate_bytes_per_sec"`

	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Defaults matches the reference implementation's historical pool sizing
// (4 KiB pages, 512 frames, 4 entries per hash bucket).
func Defaults() Config {
	return Config{
		PoolSize:   512,
		PageSize:   4096,
		BucketSize: 4,
		DataFile:   "pagecached.db",
		Logger:     logger.Config{Level: "info", Format: "console", OutputFile: "stdout"},
		Telemetry:  telemetry.Config{Enabled: false, ServiceName: "pagecached"},
	}
}

// LoadFile reads and parses a YAML config file, applying Defaults for any
// field the file omits.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pagecacheconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("pagecacheconfig: parsing %s: %w", path, err)
	}
	if cfg.PoolSize <= 0 {
		return Config{}, fmt.Errorf("pagecacheconfig: pool_size must be positive, got %d", cfg.PoolSize)
	}
	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("pagecacheconfig: page_size must be positive, got %d", cfg.PageSize)
	}
	if cfg.BucketSize <= 0 {
		return Config{}, fmt.Errorf("pagecacheconfig: bucket_size must be positive, got %d", cfg.BucketSize)
	}
	return cfg, nil
}
