package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/UnamanoDAO/AI-IELTS/internal/cache"
	"github.com/UnamanoDAO/AI-IELTS/internal/config"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the synthesized audio cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache location and size",
		Args:  cobra.NoArgs,
		RunE: withCache(func(cmd *cobra.Command, cfg *config.Config, c *cache.CacheManager) error {
			dir := cfg.Cache.Dir
			if dir == "" {
				dir, _ = cache.DefaultDir()
			}
			st := c.Stats().L2
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s %d entries, %s of %s\n",
				faint("dir:"), dir,
				faint("disk:"), st.Items, humanize.IBytes(uint64(st.Size)), humanize.IBytes(uint64(st.Capacity)))
			return nil
		}),
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: withCache(func(cmd *cobra.Command, _ *config.Config, c *cache.CacheManager) error {
			n := c.Prune()
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed %d expired entries\n", success("✓"), n)
			return nil
		}),
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: withCache(func(cmd *cobra.Command, _ *config.Config, c *cache.CacheManager) error {
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cache cleared\n", success("✓"))
			return nil
		}),
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheClearCmd)
}

func withCache(fn func(*cobra.Command, *config.Config, *cache.CacheManager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := cache.NewCacheManager(cfg.CacheConfig())
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck
		return fn(cmd, cfg, c)
	}
}
