package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lwcomply/internal/app"
	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/logger"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the local cache",
	}

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached entries per namespace",
		RunE:  runCacheStats,
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [namespace]",
		Short: "Remove cached entries",
		Long: `Removes every cached entry, or only those of one namespace.

Namespaces: ` + strings.Join(namespaceNames(), ", "),
		Example: `  # Force fresh compliance reports on the next run
  lwcomply cache clear account-compliance-reports`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCacheClear,
	}
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	if cfg.Cache.Backend != "file" {
		return errors.ConfigurationError("cache.backend", "cache stats is only available for the file backend")
	}
	store, err := cache.NewFileStore(cfg.Cache.Dir, logger.NewNop())
	if err != nil {
		return errors.ConfigurationError("cache.dir", err.Error())
	}
	usage, err := store.Usage()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	policy, err := cache.NewTTLPolicy(cfg.Cache.TTLs)
	if err != nil {
		return errors.ConfigurationError("cache.ttls", err.Error())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache: %s\n\n", store.Root())
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAMESPACE\tENTRIES\tTTL\n")
	total := 0
	for _, ns := range cache.Namespaces {
		total += usage[ns]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", ns, usage[ns], describeTTL(policy.For(ns)))
	}
	fmt.Fprintf(tw, "total\t%d\t\n", total)
	return tw.Flush()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	namespaces := cache.Namespaces
	if len(args) == 1 {
		ns, ok := parseNamespace(args[0])
		if !ok {
			return errors.ConfigurationError("namespace", fmt.Sprintf("unknown namespace %q (valid: %s)", args[0], strings.Join(namespaceNames(), ", ")))
		}
		namespaces = []cache.Namespace{ns}
	}

	store, closeStore, err := app.OpenStore(cfg.Cache, logger.NewNop())
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	ctx := contextOrBackground(cmd.Context())
	for _, ns := range namespaces {
		if err := store.Invalidate(ctx, ns, nil); err != nil {
			return fmt.Errorf("failed to clear %s: %w", ns, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", ns)
	}
	return nil
}

func parseNamespace(name string) (cache.Namespace, bool) {
	for _, ns := range cache.Namespaces {
		if string(ns) == strings.TrimSpace(name) {
			return ns, true
		}
	}
	return "", false
}

func namespaceNames() []string {
	names := make([]string, len(cache.Namespaces))
	for i, ns := range cache.Namespaces {
		names[i] = string(ns)
	}
	return names
}

func describeTTL(ttl time.Duration) string {
	if ttl == cache.ManualOnly {
		return "manual"
	}
	return ttl.String()
}
