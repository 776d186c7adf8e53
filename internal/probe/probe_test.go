package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
	"github.com/sigreer/devtab/internal/config"
)

// newTestProber builds a prober over an in-memory filesystem with no
// device-mapper and no reachable device nodes. Tests install device
// nodes with setDevNodes and tables with writeFile.
func newTestProber(t *testing.T) (*Prober, *cache.Cache) {
	t.Helper()
	c := cache.New()
	p := New(c, config.Default())
	p.fs = afero.NewMemMapFs()
	p.dm = nil
	p.clock = clockwork.NewFakeClockAt(time.Unix(1_000_000, 0))
	p.devnoAt = func(string) (uint64, bool) { return 0, false }
	p.devnoToPath = func(uint64) string { return "" }
	return p, c
}

// setDevNodes makes the given paths visible as block device nodes
func setDevNodes(p *Prober, nodes map[string]uint64) {
	p.devnoAt = func(path string) (uint64, bool) {
		devno, ok := nodes[path]
		return devno, ok
	}
}

func writeFile(t *testing.T, p *Prober, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(p.fs, path, []byte(content), 0644))
}

func timeZero() time.Time {
	return time.Time{}
}

func names(c *cache.Cache) []string {
	out := make([]string, 0, c.Len())
	for _, dev := range c.Devices() {
		out = append(out, dev.Name)
	}
	return out
}

type fakeStore struct {
	loads   int
	flushes int
	fail    bool
}

func (s *fakeStore) Load(*cache.Cache) error {
	s.loads++
	return nil
}

func (s *fakeStore) Flush(c *cache.Cache) error {
	s.flushes++
	if s.fail {
		return errors.New("disk full")
	}
	c.ClearChanged()
	return nil
}

func TestProbeAllRequiresCache(t *testing.T) {
	p := New(nil, config.Default())
	assert.ErrorIs(t, p.ProbeAll(), cache.ErrInvalidArgument)
	assert.ErrorIs(t, p.ProbeAllNew(), cache.ErrInvalidArgument)
}

func TestProbeAllFailsWithoutPartitionTable(t *testing.T) {
	p, _ := newTestProber(t)
	assert.ErrorIs(t, p.ProbeAll(), ErrUnavailable)
}

func TestProbeAllWithinIntervalIsNoop(t *testing.T) {
	p, c := newTestProber(t)
	clk := p.clock.(*clockwork.FakeClock)

	writeFile(t, p, "/proc/partitions", "major minor  #blocks  name\n\n   8  0  1000  sda\n")
	setDevNodes(p, map[string]uint64{"/dev/sda": unix.Mkdev(8, 0)})

	require.NoError(t, p.ProbeAll())
	require.Equal(t, []string{"/dev/sda"}, names(c))

	// a new disk shows up, but the cache is still fresh
	writeFile(t, p, "/proc/partitions",
		"   8  0  1000  sda\n   8 16  1000  sdb\n")
	setDevNodes(p, map[string]uint64{
		"/dev/sda": unix.Mkdev(8, 0),
		"/dev/sdb": unix.Mkdev(8, 16),
	})

	clk.Advance(10 * time.Second)
	require.NoError(t, p.ProbeAll())
	assert.Equal(t, []string{"/dev/sda"}, names(c), "second probe within the interval must not scan")

	clk.Advance(200 * time.Second)
	require.NoError(t, p.ProbeAll())
	assert.Equal(t, []string{"/dev/sda", "/dev/sdb"}, names(c))
}

func TestProbeAllNewDoesNotMarkProbed(t *testing.T) {
	p, c := newTestProber(t)

	writeFile(t, p, "/proc/partitions", "   8  0  1000  sda\n")
	setDevNodes(p, map[string]uint64{"/dev/sda": unix.Mkdev(8, 0)})

	require.NoError(t, p.ProbeAllNew())
	probed, _ := c.Probed()
	assert.False(t, probed)

	// without the probed marker there is no fast path
	require.NoError(t, p.ProbeAllNew())
	assert.Equal(t, []string{"/dev/sda"}, names(c))
}

func TestProbeAllMarksProbedEvenOnFailure(t *testing.T) {
	p, c := newTestProber(t)

	require.Error(t, p.ProbeAll())
	probed, _ := c.Probed()
	assert.True(t, probed, "a failed full pass still starts the staleness window")
}

func TestProbeAllIsIdempotent(t *testing.T) {
	p, c := newTestProber(t)
	clk := p.clock.(*clockwork.FakeClock)

	writeFile(t, p, "/proc/partitions",
		"   8  0  1000  sda\n   8  1   500  sda1\n   9  0   800  md0\n")
	setDevNodes(p, map[string]uint64{
		"/dev/sda1": unix.Mkdev(8, 1),
		"/dev/md0":  unix.Mkdev(9, 0),
	})

	require.NoError(t, p.ProbeAll())
	first := make(map[string]int)
	for _, dev := range c.Devices() {
		first[dev.Name] = dev.Priority
	}

	clk.Advance(300 * time.Second)
	require.NoError(t, p.ProbeAll())

	second := make(map[string]int)
	for _, dev := range c.Devices() {
		second[dev.Name] = dev.Priority
	}
	assert.Equal(t, first, second)
}

func TestProbeAllLoadsAndFlushesStore(t *testing.T) {
	p, c := newTestProber(t)
	st := &fakeStore{}
	p.SetStore(st)

	writeFile(t, p, "/proc/partitions", "   8  0  1000  sda\n")
	setDevNodes(p, map[string]uint64{"/dev/sda": unix.Mkdev(8, 0)})

	require.NoError(t, p.ProbeAll())
	assert.Equal(t, 1, st.loads)
	assert.Equal(t, 1, st.flushes)
	assert.False(t, c.Changed())

	// fast path touches neither source nor storage
	require.NoError(t, p.ProbeAll())
	assert.Equal(t, 1, st.loads)
	assert.Equal(t, 1, st.flushes)
}

func TestProbeAllSurfacesFlushFailure(t *testing.T) {
	p, _ := newTestProber(t)
	p.SetStore(&fakeStore{fail: true})

	writeFile(t, p, "/proc/partitions", "   8  0  1000  sda\n")
	setDevNodes(p, map[string]uint64{"/dev/sda": unix.Mkdev(8, 0)})

	assert.Error(t, p.ProbeAll())
}
