package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
)

func TestEVMSProbeParsesVolumeTable(t *testing.T) {
	p, c := newTestProber(t)
	writeFile(t, p, "/proc/evms/volumes",
		" 117 0 2097152 evms active evmsvol1\n"+
			" 117 1 1048576 evms active evmsvol2\n")
	setDevNodes(p, map[string]uint64{
		"/dev/evmsvol1": unix.Mkdev(117, 0),
		"/dev/evmsvol2": unix.Mkdev(117, 1),
	})

	num := p.evmsProbeAll(false)

	assert.Equal(t, 2, num)
	require.Equal(t, 2, c.Len())
	for _, dev := range c.Devices() {
		assert.Equal(t, cache.PriorityEVMS, dev.Priority)
	}
}

func TestEVMSProbeSkipsMalformedLines(t *testing.T) {
	p, c := newTestProber(t)
	writeFile(t, p, "/proc/evms/volumes",
		"too few fields\n"+
			" x 0 100 evms active vol\n"+
			" 117 0 2097152 evms active evmsvol1\n")
	setDevNodes(p, map[string]uint64{"/dev/evmsvol1": unix.Mkdev(117, 0)})

	num := p.evmsProbeAll(false)

	assert.Equal(t, 1, num)
	assert.Equal(t, []string{"/dev/evmsvol1"}, names(c))
}

func TestEVMSAbsentTableIsInert(t *testing.T) {
	p, c := newTestProber(t)

	assert.Equal(t, 0, p.evmsProbeAll(false))
	assert.Equal(t, 0, c.Len())
}
