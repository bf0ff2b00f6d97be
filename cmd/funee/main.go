// Command funee is the CLI front end for the funee bundler: a thin cobra
// command tree that builds a BundlerConfig, calls into the funee facade,
// and maps error kinds to exit codes — 0 success, 1 bundle/runtime
// failure, 2 CLI misuse.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	funee "github.com/funee-dev/funee"
	"github.com/funee-dev/funee/internal/diag"
	"github.com/funee-dev/funee/internal/hostruntime"
	"github.com/funee-dev/funee/internal/watch"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

// usageErr wraps a cobra flag-parsing/usage failure so exitCodeFor can
// tell it apart from a bundling error: usage errors exit 2, bundling
// errors exit 1.
type usageErr struct{ err error }

func (u usageErr) Error() string { return u.err.Error() }
func (u usageErr) Unwrap() error { return u.err }

func run() int {
	log := diag.New(os.Stderr)
	root := newRootCmd(log)
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageErr{err} })
	root.SetArgs(normalizeArgs(os.Args[1:]))
	if err := root.Execute(); err != nil {
		log.WithError(err).Error("funee")
		return exitCodeFor(err)
	}
	return 0
}

// normalizeArgs makes bundling the default command: `funee app.ts` is
// shorthand for `funee bundle app.ts`. Known subcommands and flag-only
// invocations pass through untouched.
func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	switch args[0] {
	case "bundle", "cache", "version", "help", "completion":
		return args
	}
	if strings.HasPrefix(args[0], "-") {
		return args
	}
	return append([]string{"bundle"}, args...)
}

func newRootCmd(log *logrus.Logger) *cobra.Command {
	var (
		cacheDir  string
		reload    bool
		emit      bool
		watchMode bool
	)

	cmd := &cobra.Command{
		Use:     "funee",
		Short:   "A declaration-granular TypeScript bundler",
		Version: version,
		Long: `funee fetches, resolves, macro-expands, tree-shakes, and emits a
single-file JavaScript bundle from a TypeScript/JavaScript entry point.`,
	}

	bundleCmd := &cobra.Command{
		Use:   "bundle <entry>",
		Short: "Bundle an entry point and run (or print) the result",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageErr{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := funee.DefaultConfig()
			cfg.Emit = emit
			cfg.Reload = reload
			cfg.CacheDir = resolveCacheDir(cacheDir)

			ctx := context.Background()
			fs := afero.NewOsFs()
			entry := args[0]

			bundleOnce := func() error {
				return bundleAndRun(ctx, entry, cfg, fs, log)
			}

			if !watchMode {
				return bundleOnce()
			}

			// Watch mode stops its watchers and exits cleanly on
			// SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			scenario := watch.Scenario{
				Name: entry,
				Run: func(ctx context.Context) error {
					if err := bundleOnce(); err != nil {
						log.WithError(err).Error("bundle failed")
					}
					return nil
				},
			}
			result, err := funee.Bundle(ctx, entry, cfg, fs, diag.Line(log))
			if err == nil {
				scenario.Files = result.WatchURIs()
			}
			driver := watch.New(log, cfg.WatchDebounce)
			return driver.Run(ctx, []watch.Scenario{scenario})
		},
	}
	bundleCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "HTTP cache root (default: $FUNEE_CACHE_DIR or ~/.funee/cache)")
	bundleCmd.Flags().BoolVar(&reload, "reload", false, "bypass the HTTP cache on read")
	bundleCmd.Flags().BoolVar(&emit, "emit", false, "print the bundle instead of running it")
	bundleCmd.Flags().BoolVar(&watchMode, "watch", false, "re-bundle and re-run on file change")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the funee version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("funee " + version)
		},
	}

	cmd.AddCommand(bundleCmd, newCacheCmd(), versionCmd)
	return cmd
}

// bundleAndRun bundles entry once and, unless cfg.Emit is set, executes
// it against the default hostruntime backend, printing captured console
// output to stderr.
func bundleAndRun(ctx context.Context, entry string, cfg funee.BundlerConfig, fs afero.Fs, log *logrus.Logger) error {
	result, err := funee.Bundle(ctx, entry, cfg, fs, diag.Line(log))
	if err != nil {
		return err
	}
	if cfg.Emit {
		fmt.Println(result.Program)
		return nil
	}

	backend := hostruntime.New(fs)
	defer backend.Shutdown()
	outcome, err := backend.Run(ctx, result.Program)
	if outcome != nil {
		for _, l := range outcome.Logs {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", l.Level, l.Message)
		}
	}
	return err
}

// resolveCacheDir applies the FUNEE_CACHE_DIR environment variable, with
// an explicit --cache-dir flag taking precedence.
func resolveCacheDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("FUNEE_CACHE_DIR")
}

// exitCodeFor maps an error to an exit code: a help request is success, a
// CLI usage error (bad flags/args) is 2, and any bundling error is 1.
func exitCodeFor(err error) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if _, ok := err.(usageErr); ok {
		return 2
	}
	return 1
}
