// Package probe builds the device cache by reconciling the kernel
// partition table, the device-mapper device list, the legacy LVM proc
// hierarchy, and the EVMS volume table. Each source feeds discovered
// (short name, device number) pairs into a single resolver that decides
// the canonical path and priority for the cache entry.
package probe

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/sigreer/devtab/internal/cache"
	"github.com/sigreer/devtab/internal/config"
	"github.com/sigreer/devtab/internal/devmapper"
)

// ErrUnavailable is returned when a required kernel interface cannot be
// opened. Per-device failures are never surfaced; they only drop the
// affected device from the pass.
var ErrUnavailable = errors.New("resource unavailable")

// Store persists the cache between probe passes
type Store interface {
	Load(*cache.Cache) error
	Flush(*cache.Cache) error
}

// Prober runs probe passes against a cache. It is synchronous and
// single-threaded; callers wanting a timeout run the pass in their own
// execution context.
type Prober struct {
	cache *cache.Cache
	fs    afero.Fs
	dm    *devmapper.Client
	store Store
	clock clockwork.Clock
	log   zerolog.Logger

	partitionsPath string
	evmsPath       string
	vgDir          string
	devdirs        []string
	interval       time.Duration

	// devnoAt stats a path and reports its device number if it is a
	// block device node
	devnoAt func(path string) (uint64, bool)

	// devnoToPath is the last-resort exhaustive device-number lookup
	devnoToPath func(devno uint64) string
}

// New creates a prober over the given cache. A nil config uses built-in
// defaults. The cache gets a stat-based verifier unless one is already
// set.
func New(c *cache.Cache, cfg *config.Config) *Prober {
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Prober{
		cache:          c,
		fs:             afero.NewOsFs(),
		dm:             devmapper.New(),
		clock:          clockwork.NewRealClock(),
		log:            zerolog.Nop(),
		partitionsPath: cfg.PartitionsPath,
		evmsPath:       cfg.EVMSPath,
		vgDir:          cfg.LVMDir,
		devdirs:        cfg.DeviceDirs,
		interval:       cfg.ProbeInterval(),
	}
	p.devnoAt = statDevno
	p.devnoToPath = p.devnoToDevname

	if c != nil && c.Verifier == nil {
		c.Verifier = p.statVerify
	}
	return p
}

// SetStore attaches persistent storage reloaded before and flushed after
// each pass
func (p *Prober) SetStore(s Store) {
	p.store = s
}

// SetLogger sets the logger used for probe tracing
func (p *Prober) SetLogger(log zerolog.Logger) {
	p.log = log
	if p.dm != nil {
		p.dm.SetLogger(log)
	}
}

// ProbeAll runs a full probe pass and marks the cache as fully probed.
// A pass within the probe interval of the previous one is a no-op.
func (p *Prober) ProbeAll() error {
	if p.cache == nil {
		return cache.ErrInvalidArgument
	}
	err := p.probeAll(false)
	p.cache.MarkProbed(p.clock.Now())
	return err
}

// ProbeAllNew runs an incremental pass that only registers devices whose
// device numbers are not already cached. It never marks the cache as
// fully probed.
func (p *Prober) ProbeAllNew() error {
	return p.probeAll(true)
}

func (p *Prober) probeAll(onlyIfNew bool) error {
	if p.cache == nil {
		return cache.ErrInvalidArgument
	}

	if probed, at := p.cache.Probed(); probed && p.clock.Since(at) < p.interval {
		p.log.Debug().Time("last_probe", at).Msg("cache is fresh, skipping probe")
		return nil
	}

	if p.store != nil {
		if err := p.store.Load(p.cache); err != nil {
			p.log.Warn().Err(err).Msg("failed to reload cache from storage")
		}
	}

	p.dmProbeAll(onlyIfNew)
	p.evmsProbeAll(onlyIfNew)
	p.lvmProbeAll(onlyIfNew)

	if err := p.scanPartitions(onlyIfNew); err != nil {
		return err
	}

	if p.store != nil {
		if err := p.store.Flush(p.cache); err != nil {
			return fmt.Errorf("failed to flush cache: %w", err)
		}
	}
	return nil
}
