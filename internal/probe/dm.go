package probe

import (
	"github.com/sigreer/devtab/internal/cache"
)

// dmProbeAll enumerates active mapped devices and feeds the leaves to
// the resolver as mapper/<name>. Internal layers consumed by a
// higher-level mapping (an encrypted volume under a logical volume, for
// instance) are skipped, matching the topology the kernel exposes for
// direct naming. Any per-device query failure skips only that device.
func (p *Prober) dmProbeAll(onlyIfNew bool) {
	if p.dm == nil {
		return
	}

	var names []string
	_ = p.dm.Quiet(func() (err error) {
		names, err = p.dm.Names()
		return err
	})

	for _, name := range names {
		devno, err := p.dm.Devno(name)
		if err != nil || devno == 0 {
			continue
		}
		if !p.dmIsLeaf(devno) {
			continue
		}
		p.log.Debug().Str("name", name).Uint64("devno", devno).Msg("mapped device")
		p.probeOne("mapper/"+name, devno, cache.PriorityDM, onlyIfNew)
	}
}

// dmIsLeaf reports whether no active mapped device lists devno among its
// dependencies. The dependency topology can change between device-mapper
// operations, so this is recomputed per query rather than cached. A
// system without device-mapper treats every device as a leaf.
func (p *Prober) dmIsLeaf(devno uint64) bool {
	if p.dm == nil {
		return true
	}

	var names []string
	if err := p.dm.Quiet(func() (err error) {
		names, err = p.dm.Names()
		return err
	}); err != nil {
		return true
	}

	for _, name := range names {
		if p.dmHasDep(devno, name) {
			return false
		}
	}
	return true
}

// dmHasDep reports whether the named mapped device depends on devno
func (p *Prober) dmHasDep(devno uint64, name string) bool {
	deps, err := p.dm.Deps(name)
	if err != nil {
		return false
	}
	for _, dep := range deps {
		if dep == devno {
			return true
		}
	}
	return false
}
