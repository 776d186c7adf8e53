package probe

import (
	"bufio"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
)

// evmsProbeAll parses the EVMS volume table, a proc-style file with
// major, minor and size in the first three columns and the volume name
// in the sixth. A missing table means EVMS is not in use. Returns the
// number of volumes processed.
func (p *Prober) evmsProbeAll(onlyIfNew bool) int {
	f, err := p.fs.Open(p.evmsPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	num := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		major, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		minor, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		if _, err := strconv.ParseUint(fields[2], 10, 64); err != nil {
			continue
		}
		device := fields[5]

		devno := unix.Mkdev(uint32(major), uint32(minor))
		p.log.Debug().Str("name", device).Uint64("devno", devno).Msg("EVMS volume")
		p.probeOne(device, devno, cache.PriorityEVMS, onlyIfNew)
		num++
	}
	return num
}
