package probe

import (
	"github.com/spf13/afero"
)

// maxDevDirDepth bounds the subdirectory descent when searching device
// directories. /dev hierarchies are shallow; anything deeper is not a
// device layout we should wander into.
const maxDevDirDepth = 4

// devnoToDevname is the last-resort path resolution: walk the device
// directories looking for any block node carrying the target device
// number. Plain entries in a directory are preferred over entries in its
// subdirectories. Returns "" when the number is unreachable.
func (p *Prober) devnoToDevname(devno uint64) string {
	for _, dir := range p.devdirs {
		if name := p.scanDevDir(dir, devno, maxDevDirDepth); name != "" {
			return name
		}
	}
	return ""
}

func (p *Prober) scanDevDir(dir string, devno uint64, depth int) string {
	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return ""
	}

	var subdirs []string
	for _, entry := range entries {
		path := dir + "/" + entry.Name()
		if entry.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}
		if no, ok := p.devnoAt(path); ok && no == devno {
			return path
		}
	}

	if depth > 0 {
		for _, sub := range subdirs {
			if name := p.scanDevDir(sub, devno, depth-1); name != "" {
				return name
			}
		}
	}
	return ""
}
