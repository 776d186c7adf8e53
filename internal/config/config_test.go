package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/proc/partitions", cfg.PartitionsPath)
	assert.Equal(t, "/proc/evms/volumes", cfg.EVMSPath)
	assert.Equal(t, "/proc/lvm/VGs", cfg.LVMDir)
	assert.Equal(t, []string{"/dev", "/devfs", "/devices"}, cfg.DeviceDirs)
	assert.Equal(t, 200*time.Second, cfg.ProbeInterval())
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "partitions_path: /tmp/partitions\nprobe_interval: 5\ndevice_dirs:\n  - /tmp/dev\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/partitions", cfg.PartitionsPath)
	assert.Equal(t, []string{"/tmp/dev"}, cfg.DeviceDirs)
	assert.Equal(t, 5*time.Second, cfg.ProbeInterval())
	// untouched fields fall back to defaults
	assert.Equal(t, "/proc/lvm/VGs", cfg.LVMDir)
	assert.Equal(t, "/var/lib/devtab/cache.db", cfg.CachePath)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultReturnsCopy(t *testing.T) {
	a := Default()
	a.DeviceDirs[0] = "/changed"

	b := Default()
	assert.Equal(t, "/dev", b.DeviceDirs[0])
}
