// Command lsmkv is a CLI front end for the embedded storage engine,
// replacing the teacher's three-engine demo walkthrough with direct
// subcommands over a single on-disk directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anchorkv/lsmkv"
)

var dataDir string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lsmkv",
		Short: "Inspect and drive an lsmkv storage engine directory",
	}
	root.PersistentFlags().StringVar(&dataDir, "dir", "./lsmkv-data", "engine data directory")

	root.AddCommand(newPutCmd(), newGetCmd(), newDeleteCmd(), newRangeCmd(), newStatsCmd(), newCompactCmd())
	return root
}

func openEngine() (*lsmkv.Engine, *zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}
	opts := lsmkv.DefaultOptions()
	opts.Logger = logger
	e, err := lsmkv.Open(dataDir, opts)
	if err != nil {
		logger.Sync() //nolint:errcheck
		return nil, nil, err
	}
	return e, logger, nil
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Set a key to a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, logger, err := openEngine()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer e.Close()
			return e.Set(args[0], []byte(args[1]))
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, logger, err := openEngine()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer e.Close()

			v, ok, err := e.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(absent)")
				return nil
			}
			fmt.Println(string(v))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, logger, err := openEngine()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer e.Close()
			return e.Delete(args[0])
		},
	}
}

func newRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range <lo> <hi>",
		Short: "List keys in [lo, hi]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, logger, err := openEngine()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer e.Close()

			entries, err := e.Range(args[0], args[1])
			if err != nil {
				return err
			}
			for _, ent := range entries {
				fmt.Printf("%s\t%s\n", ent.Key, string(ent.Value))
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, logger, err := openEngine()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer e.Close()

			s := e.Stats()
			fmt.Printf("memtable_bytes: %d  memtable_entries: %d\n", s.MemtableBytes, s.MemtableEntries)
			fmt.Printf("per_level_file_counts: %v\n", s.PerLevelFileCounts)
			fmt.Printf("per_level_entry_counts: %v\n", s.PerLevelEntryCounts)
			fmt.Printf("writes: %d  reads: %d  flushes: %d  compactions: %d\n",
				s.WriteCount, s.ReadCount, s.FlushCount, s.CompactCount)
			return nil
		},
	}
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Manually compact level 0 into level 1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, logger, err := openEngine()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer e.Close()
			return e.Compact()
		},
	}
}
