package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <major>:<minor>",
	Short: "Find the preferred cached name for a device number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		devno, err := parseDevno(args[0])
		if err != nil {
			return err
		}

		noProbe, _ := cmd.Flags().GetBool("no-probe")

		var c *cache.Cache
		if noProbe {
			loaded, st, err := loadCache()
			if err != nil {
				return err
			}
			defer st.Close()
			c = loaded
		} else {
			p, probed, st, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := p.ProbeAll(); err != nil {
				return err
			}
			c = probed
		}

		dev := bestByDevno(c, devno)
		if dev == nil {
			return fmt.Errorf("no device with number %s", args[0])
		}
		fmt.Println(dev.Name)
		return nil
	},
}

// bestByDevno picks the highest-priority alias for a device number;
// insertion order breaks ties, so the earliest-created alias wins.
func bestByDevno(c *cache.Cache, devno uint64) *cache.Device {
	var best *cache.Device
	for _, dev := range c.Devices() {
		if dev.Devno != devno {
			continue
		}
		if best == nil || dev.Priority > best.Priority {
			best = dev
		}
	}
	return best
}

func parseDevno(s string) (uint64, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("device number must be <major>:<minor>, got %q", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid major number %q", parts[0])
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid minor number %q", parts[1])
	}
	return unix.Mkdev(uint32(major), uint32(minor)), nil
}

func init() {
	resolveCmd.Flags().Bool("no-probe", false, "Resolve from the persisted cache without probing")
}
