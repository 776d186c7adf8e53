package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sigreer/devtab/internal/cache"
	"github.com/sigreer/devtab/internal/config"
	"github.com/sigreer/devtab/internal/probe"
	"github.com/sigreer/devtab/internal/store"
	"github.com/sigreer/devtab/internal/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:     "devtab",
	Short:   "Block device discovery and name cache",
	Version: version.Version,
	Long: `devtab probes the kernel partition table, device-mapper, LVM and EVMS
interfaces, reconciles them into a cache mapping device numbers to
canonical device paths, and keeps that cache fresh across runs.`,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run a full probe pass and update the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, c, st, err := setup()
		if err != nil {
			return err
		}
		defer st.Close()

		started := time.Now()
		if err := p.ProbeAll(); err != nil {
			return err
		}
		if err := st.RecordRun(started, time.Now(), c.Len()); err != nil {
			log := logger()
			log.Warn().Err(err).Msg("failed to record probe run")
		}
		fmt.Printf("%d devices cached\n", c.Len())
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Register only devices not already in the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, c, st, err := setup()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := p.ProbeAllNew(); err != nil {
			return err
		}
		fmt.Printf("%d devices cached\n", c.Len())
		return nil
	},
}

// setup wires a prober, cache and store from the configuration
func setup() (*probe.Prober, *cache.Cache, *store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.New(cfg.CachePath)
	if err != nil {
		return nil, nil, nil, err
	}
	c := cache.New()
	p := probe.New(c, cfg)
	p.SetStore(st)
	p.SetLogger(logger())
	return p, c, st, nil
}

func logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/devtab/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(resolveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
