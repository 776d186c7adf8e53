package probe

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// pendingDisk is a whole-disk table line whose classification is still
// open: it is a standalone disk only if the next line is not one of its
// partitions.
type pendingDisk struct {
	name  string
	devno uint64
}

// scanPartitions reads the kernel partition table in a single pass. The
// table lists a disk's partitions immediately after the disk itself,
// sharing its name as a prefix, with no structural marker, so whole
// disks are reconstructed from line order alone:
//
//   - a name ending in a digit is a partition; it confirms the pending
//     line (if any) was a partitioned disk, which is then dropped
//   - any other name becomes the new pending whole-disk candidate,
//     flushing a previous pending line that it does not extend
//
// Partitions of size 1 block are extended-partition containers and are
// dropped. All forwards use priority 0 so the resolver's software-RAID
// upgrade applies.
func (p *Prober) scanPartitions(onlyIfNew bool) error {
	f, err := p.fs.Open(p.partitionsPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnavailable, p.partitionsPath, err)
	}
	defer f.Close()

	var pending *pendingDisk

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, devno, size, ok := parsePartitionLine(scanner.Text())
		if !ok {
			continue
		}

		last := name[len(name)-1]
		if last >= '0' && last <= '9' {
			p.log.Debug().Str("name", name).Uint64("devno", devno).Msg("partition")
			if size > 1 {
				p.probeOne(name, devno, 0, onlyIfNew)
			}
			// the disk this partition belongs to is never registered
			pending = nil
			continue
		}

		if pending != nil && !strings.HasPrefix(name, pending.name) {
			p.log.Debug().Str("name", pending.name).Uint64("devno", pending.devno).Msg("whole disk")
			p.probeOne(pending.name, pending.devno, 0, onlyIfNew)
		}
		pending = &pendingDisk{name: name, devno: devno}
	}

	// Handle the last device if it wasn't partitioned
	if pending != nil {
		p.probeOne(pending.name, pending.devno, 0, onlyIfNew)
	}
	return nil
}

// parsePartitionLine splits a partition table line into name, device
// number and size in blocks. Lines with the wrong shape (including the
// header) report ok=false.
func parsePartitionLine(line string) (name string, devno, size uint64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return "", 0, 0, false
	}
	major, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	minor, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	size, err = strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	return fields[3], unix.Mkdev(uint32(major), uint32(minor)), size, true
}
