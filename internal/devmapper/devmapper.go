// Package devmapper talks to the device-mapper management interface via
// dmsetup. Queries are cheap one-shot invocations; callers are expected to
// tolerate individual query failures (a device can disappear between the
// list and the follow-up info call).
package devmapper

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Runner executes a command and returns its stdout
type Runner func(name string, args ...string) ([]byte, error)

func execRun(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Client queries the device-mapper state of the running system
type Client struct {
	run Runner
	log zerolog.Logger
}

// New creates a client backed by the dmsetup binary
func New() *Client {
	return &Client{
		run: execRun,
		log: zerolog.Nop(),
	}
}

// NewWithRunner creates a client with a custom command runner
func NewWithRunner(run Runner) *Client {
	return &Client{
		run: run,
		log: zerolog.Nop(),
	}
}

// SetLogger sets the logger used for query diagnostics
func (c *Client) SetLogger(log zerolog.Logger) {
	c.log = log
}

// Quiet runs fn with client logging suppressed, restoring the previous
// logger on every exit path. Enumeration during probing runs quiet so a
// system without device-mapper does not spam diagnostics.
func (c *Client) Quiet(fn func() error) error {
	prev := c.log
	c.log = zerolog.Nop()
	defer func() { c.log = prev }()
	return fn()
}

// Names lists the names of all currently active mapped devices
func (c *Client) Names() ([]string, error) {
	out, err := c.run("dmsetup", "info", "-c", "--noheadings", "-o", "name")
	if err != nil {
		c.log.Debug().Err(err).Msg("dmsetup list failed")
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		// dmsetup prints "No devices found" instead of an empty table
		if line == "" || strings.Contains(line, " ") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// Devno resolves the device number of a named mapped device. A device
// that no longer exists yields an error.
func (c *Client) Devno(name string) (uint64, error) {
	out, err := c.run("dmsetup", "info", "-c", "--noheadings", "-o", "major,minor", name)
	if err != nil {
		c.log.Debug().Err(err).Str("name", name).Msg("dmsetup info failed")
		return 0, err
	}

	fields := strings.SplitN(strings.TrimSpace(string(out)), ":", 2)
	if len(fields) != 2 {
		return 0, fmt.Errorf("unexpected dmsetup info output %q", strings.TrimSpace(string(out)))
	}
	major, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, err
	}
	minor, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, err
	}
	return unix.Mkdev(uint32(major), uint32(minor)), nil
}

// depRe matches the "(major, minor)" pairs in dmsetup deps output
var depRe = regexp.MustCompile(`\((\d+),\s*(\d+)\)`)

// Deps returns the device numbers a named mapped device depends on
func (c *Client) Deps(name string) ([]uint64, error) {
	out, err := c.run("dmsetup", "deps", name)
	if err != nil {
		c.log.Debug().Err(err).Str("name", name).Msg("dmsetup deps failed")
		return nil, err
	}

	var deps []uint64
	for _, m := range depRe.FindAllStringSubmatch(string(out), -1) {
		major, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		minor, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		deps = append(deps, unix.Mkdev(uint32(major), uint32(minor)))
	}
	return deps, nil
}
