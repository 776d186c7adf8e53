package cache

import (
	"errors"
	"time"
)

// Source priorities. When several cached names resolve to the same device
// number, consumers prefer the name with the highest priority.
const (
	// PriorityDM is assigned to device-mapper devices
	PriorityDM = 40

	// PriorityEVMS is assigned to EVMS volume-manager devices
	PriorityEVMS = 30

	// PriorityLVM is assigned to LVM logical volumes
	PriorityLVM = 20

	// PriorityMD is assigned to software RAID devices
	PriorityMD = 10
)

// ErrInvalidArgument is returned when a required argument is missing
var ErrInvalidArgument = errors.New("invalid argument")

// Flags control FindOrCreate behavior
type Flags uint

const (
	// FlagFind only looks up an existing entry
	FlagFind Flags = 0

	// FlagCreate allocates a new entry when the name is not cached
	FlagCreate Flags = 1 << 0

	// FlagVerify passes the result through the cache's verifier
	FlagVerify Flags = 1 << 1

	// FlagNormal creates if absent and verifies the result
	FlagNormal = FlagCreate | FlagVerify
)

// Device is one discovered block device. Devices are owned by the Cache;
// callers hold references only.
type Device struct {
	// Name is the canonical filesystem path, unique within the cache
	Name string

	// Devno is the raw OS device number (major/minor packed)
	Devno uint64

	// Priority ranks the source that discovered this name
	Priority int

	// VerifiedAt is the time of the last existence check;
	// the zero value means never verified
	VerifiedAt time.Time
}

// VerifyFunc refreshes or invalidates a device record in place. It may
// remove the device from the cache and return nil if the device is gone.
type VerifyFunc func(*Cache, *Device) *Device

// Cache is the process-local device registry. It keeps devices in
// insertion order with a name index for lookup. The cache has no locking
// of its own; it assumes a single logical owner per process.
type Cache struct {
	devices []*Device
	byName  map[string]*Device

	changed   bool
	probed    bool
	lastProbe time.Time

	// Verifier is applied under FlagVerify and by the resolver when a
	// cached entry matches a probed device number. Nil disables
	// verification.
	Verifier VerifyFunc
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		byName: make(map[string]*Device),
	}
}

// FindOrCreate looks up a device by name. With FlagCreate an absent name
// is allocated and appended to the cache. A nil device with a nil error
// means the name is not cached, which is a normal result, not a failure.
func (c *Cache) FindOrCreate(name string, flags Flags) (*Device, error) {
	if c == nil || name == "" {
		return nil, ErrInvalidArgument
	}

	dev := c.byName[name]

	if dev == nil && flags&FlagCreate != 0 {
		dev = &Device{Name: name}
		c.devices = append(c.devices, dev)
		c.byName[name] = dev
		c.changed = true
	}

	if flags&FlagVerify != 0 && c.Verifier != nil {
		dev = c.Verifier(c, dev)
	}

	return dev, nil
}

// Devices returns the cached devices in insertion order. The slice is
// shared with the cache and must not be mutated by callers.
func (c *Cache) Devices() []*Device {
	return c.devices
}

// Len returns the number of cached devices
func (c *Cache) Len() int {
	return len(c.devices)
}

// Remove drops a device from the cache and marks the cache changed
func (c *Cache) Remove(dev *Device) {
	if dev == nil {
		return
	}
	if c.byName[dev.Name] != dev {
		return
	}
	delete(c.byName, dev.Name)
	for i, d := range c.devices {
		if d == dev {
			c.devices = append(c.devices[:i], c.devices[i+1:]...)
			break
		}
	}
	c.changed = true
}

// Restore appends a device loaded from backing storage without marking
// the cache changed. An already-cached name wins and the restored record
// is discarded, keeping the earliest-created alias canonical.
func (c *Cache) Restore(name string, devno uint64, priority int, verifiedAt time.Time) {
	if name == "" || c.byName[name] != nil {
		return
	}
	dev := &Device{
		Name:       name,
		Devno:      devno,
		Priority:   priority,
		VerifiedAt: verifiedAt,
	}
	c.devices = append(c.devices, dev)
	c.byName[name] = dev
}

// Changed reports whether the cache differs from backing storage
func (c *Cache) Changed() bool {
	return c.changed
}

// MarkChanged flags the cache as differing from backing storage
func (c *Cache) MarkChanged() {
	c.changed = true
}

// ClearChanged is called after a successful flush to backing storage
func (c *Cache) ClearChanged() {
	c.changed = false
}

// Probed reports whether a full probe pass has completed and when
func (c *Cache) Probed() (bool, time.Time) {
	return c.probed, c.lastProbe
}

// MarkProbed records the completion time of a full probe pass
func (c *Cache) MarkProbed(at time.Time) {
	c.probed = true
	c.lastProbe = at
}
