package probe

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
)

// lvmProbeAll walks the legacy VG/LV proc hierarchy. The directory
// names give the device structure under /dev directly: each logical
// volume is registered as <vg>/<lv>. A system without the hierarchy
// simply contributes nothing.
func (p *Prober) lvmProbeAll(onlyIfNew bool) {
	vgs, err := afero.ReadDir(p.fs, p.vgDir)
	if err != nil {
		return
	}

	for _, vg := range vgs {
		lvDir := filepath.Join(p.vgDir, vg.Name(), "LVs")
		lvs, err := afero.ReadDir(p.fs, lvDir)
		if err != nil {
			continue
		}

		for _, lv := range lvs {
			devno := p.lvmDevno(filepath.Join(lvDir, lv.Name()))
			name := vg.Name() + "/" + lv.Name()
			p.log.Debug().Str("name", name).Uint64("devno", devno).Msg("LVM device")
			p.probeOne(name, devno, cache.PriorityLVM, onlyIfNew)
		}
	}
}

// lvmDevno extracts the device number from a per-LV metadata file. The
// first "device: <major>:<minor>" line wins; anything else yields 0,
// which the resolver will fail to place and skip.
func (p *Prober) lvmDevno(path string) uint64 {
	f, err := p.fs.Open(path)
	if err != nil {
		p.log.Debug().Err(err).Str("path", path).Msg("cannot open LV metadata")
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var major, minor uint32
		if n, _ := fmt.Sscanf(scanner.Text(), "device: %d:%d", &major, &minor); n == 2 {
			return unix.Mkdev(major, minor)
		}
	}
	return 0
}
