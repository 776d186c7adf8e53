package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigreer/devtab/internal/cache"
	"github.com/sigreer/devtab/internal/config"
	"github.com/sigreer/devtab/internal/store"
)

type deviceJSON struct {
	Name     string `json:"name"`
	Major    uint32 `json:"major"`
	Minor    uint32 `json:"minor"`
	Priority int    `json:"priority"`
	Verified string `json:"verified,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the cached devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		c, st, err := loadCache()
		if err != nil {
			return err
		}
		defer st.Close()

		if jsonOut {
			out := make([]deviceJSON, 0, c.Len())
			for _, dev := range c.Devices() {
				d := deviceJSON{
					Name:     dev.Name,
					Major:    unix.Major(dev.Devno),
					Minor:    unix.Minor(dev.Devno),
					Priority: dev.Priority,
				}
				if !dev.VerifiedAt.IsZero() {
					d.Verified = dev.VerifiedAt.Format("2006-01-02T15:04:05Z07:00")
				}
				out = append(out, d)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMAJ:MIN\tPRI\tVERIFIED")
		for _, dev := range c.Devices() {
			verified := "never"
			if !dev.VerifiedAt.IsZero() {
				verified = humanize.Time(dev.VerifiedAt)
			}
			fmt.Fprintf(w, "%s\t%d:%d\t%d\t%s\n",
				dev.Name, unix.Major(dev.Devno), unix.Minor(dev.Devno),
				dev.Priority, verified)
		}
		return w.Flush()
	},
}

// loadCache opens the store and reads the persisted cache without probing
func loadCache() (*cache.Cache, *store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.New(cfg.CachePath)
	if err != nil {
		return nil, nil, err
	}
	c := cache.New()
	if err := st.Load(c); err != nil {
		st.Close()
		return nil, nil, err
	}
	return c, st, nil
}

func init() {
	listCmd.Flags().Bool("json", false, "Output as JSON")
}
