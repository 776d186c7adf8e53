package probe

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
)

// probeOne maps a (short name, device number) pair reported by a source
// to a verified cache entry with a priority. An unreachable device is
// silently skipped, never an error: the next pass will pick it up if it
// reappears.
func (p *Prober) probeOne(ptname string, devno uint64, pri int, onlyIfNew bool) {
	// See if we already have this device number in the cache. A device
	// number that is an internal device-mapper layer (some other mapped
	// device depends on it) never matches here, so internal layers do
	// not get re-verified under their direct names.
	var dev *cache.Device
	if devs := p.cache.Devices(); len(devs) > 0 && p.dmIsLeaf(devno) {
		for _, tmp := range devs {
			if tmp.Devno != devno {
				continue
			}
			if onlyIfNew {
				return
			}
			dev = p.verify(tmp)
			break
		}
	}
	if dev != nil && dev.Devno == devno {
		p.setPriority(dev, ptname, pri)
		return
	}

	// Take a quick look at <dir>/<ptname> in each of the likely device
	// directories. If none checks out, fall back to the exhaustive
	// device-number search.
	var devname string
	for _, dir := range p.devdirs {
		device := dir + "/" + ptname

		if tmp, _ := p.cache.FindOrCreate(device, cache.FlagFind); tmp != nil && tmp.Devno == devno {
			p.setPriority(tmp, ptname, pri)
			return
		}

		if no, ok := p.devnoAt(device); ok && no == devno {
			devname = device
			break
		}
	}
	if devname == "" {
		devname = p.devnoToPath(devno)
		if devname == "" {
			p.log.Debug().Str("name", ptname).
				Uint64("devno", devno).
				Msg("device unreachable, skipping")
			return
		}
	}

	dev, err := p.cache.FindOrCreate(devname, cache.FlagNormal)
	if err != nil || dev == nil {
		return
	}
	p.setPriority(dev, ptname, pri)
}

// setPriority stores the source priority, upgrading unprioritized
// software RAID names
func (p *Prober) setPriority(dev *cache.Device, ptname string, pri int) {
	if pri == 0 && strings.HasPrefix(ptname, "md") {
		pri = cache.PriorityMD
	}
	dev.Priority = pri
}

// verify passes a device through the cache's verifier
func (p *Prober) verify(dev *cache.Device) *cache.Device {
	if p.cache.Verifier == nil {
		return dev
	}
	return p.cache.Verifier(p.cache, dev)
}

// statVerify is the default verifier: the cached path must still exist
// as a block device node. A vanished node invalidates the entry; a live
// one gets its device number and verification time refreshed.
func (p *Prober) statVerify(c *cache.Cache, dev *cache.Device) *cache.Device {
	if dev == nil {
		return nil
	}
	devno, ok := p.devnoAt(dev.Name)
	if !ok {
		p.log.Debug().Str("name", dev.Name).Msg("cached device is gone")
		c.Remove(dev)
		return nil
	}
	if dev.Devno != devno {
		dev.Devno = devno
		c.MarkChanged()
	}
	dev.VerifiedAt = p.clock.Now()
	return dev
}

// statDevno stats a path and returns its device number if it is a block
// device node
func statDevno(path string) (uint64, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return 0, false
	}
	return uint64(st.Rdev), true
}
