package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/funee-dev/funee/internal/fetcher/cachedb"
)

// newCacheCmd builds the `funee cache` subtree: introspection over the
// on-disk HTTP cache via its SQLite ledger. The ledger is bookkeeping
// only — removing an entry here also removes the body file, but a body
// file with no ledger row still serves fetches.
func newCacheCmd() *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the HTTP module cache",
	}
	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "HTTP cache root (default: $FUNEE_CACHE_DIR or ~/.funee/cache)")

	openLedger := func() (*cachedb.DB, error) {
		dir := resolveCacheDir(cacheDir)
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(home, ".funee", "cache")
		}
		return cachedb.Open(filepath.Join(dir, "ledger.sqlite3"))
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List cached module fetches",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%-8s  %-14s  %s\n",
					humanize.Bytes(uint64(e.Bytes)),
					humanize.Time(e.FetchedAt),
					e.URL)
			}
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <url>",
		Short: "Evict a URL from the cache",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageErr{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.URL != args[0] {
					continue
				}
				if e.BodyPath != "" {
					os.Remove(e.BodyPath)
					os.Remove(e.BodyPath + ".meta.json")
				}
				return db.Delete(e.URL)
			}
			return fmt.Errorf("cache: no entry for %s", args[0])
		},
	}

	cmd.AddCommand(lsCmd, rmCmd)
	return cmd
}
