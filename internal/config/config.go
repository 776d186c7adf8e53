package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// CachePath is the location of the persistent device cache
	CachePath string `yaml:"cache_path,omitempty"`

	// PartitionsPath is the kernel partition table interface
	PartitionsPath string `yaml:"partitions_path,omitempty"`

	// EVMSPath is the EVMS volume table interface
	EVMSPath string `yaml:"evms_path,omitempty"`

	// LVMDir is the root of the legacy VG/LV proc hierarchy
	LVMDir string `yaml:"lvm_dir,omitempty"`

	// DeviceDirs are the device-node directories probed for short
	// names, in preference order
	DeviceDirs []string `yaml:"device_dirs,omitempty"`

	// ProbeIntervalSecs is the window within which a repeated full
	// probe is a no-op
	ProbeIntervalSecs int `yaml:"probe_interval,omitempty"`
}

// defaultConfig provides baseline settings matching a stock Linux system
var defaultConfig = Config{
	CachePath:         "/var/lib/devtab/cache.db",
	PartitionsPath:    "/proc/partitions",
	EVMSPath:          "/proc/evms/volumes",
	LVMDir:            "/proc/lvm/VGs",
	DeviceDirs:        []string{"/dev", "/devfs", "/devices"},
	ProbeIntervalSecs: 200,
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	cfg.DeviceDirs = append([]string(nil), defaultConfig.DeviceDirs...)
	return &cfg
}

func Load(path string) (*Config, error) {
	if path == "" {
		// Try default locations
		candidates := []string{
			"/etc/devtab/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/devtab/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Apply defaults for missing fields
	if cfg.CachePath == "" {
		cfg.CachePath = defaultConfig.CachePath
	}
	if cfg.PartitionsPath == "" {
		cfg.PartitionsPath = defaultConfig.PartitionsPath
	}
	if cfg.EVMSPath == "" {
		cfg.EVMSPath = defaultConfig.EVMSPath
	}
	if cfg.LVMDir == "" {
		cfg.LVMDir = defaultConfig.LVMDir
	}
	if len(cfg.DeviceDirs) == 0 {
		cfg.DeviceDirs = append([]string(nil), defaultConfig.DeviceDirs...)
	}
	if cfg.ProbeIntervalSecs == 0 {
		cfg.ProbeIntervalSecs = defaultConfig.ProbeIntervalSecs
	}

	return &cfg, nil
}

// ProbeInterval returns the staleness window as a duration
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSecs) * time.Second
}
