package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subflow/internal/api"
	"subflow/internal/cache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the artifact cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheSizeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached subtitle and translation artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := cacheStore(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}
			views := api.CacheEntries(store)
			if jsonOutput {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				present := humanBytes(v.SizeBytes)
				if !v.Present {
					present = "missing"
				}
				rows = append(rows, []string{v.ShortKey, v.Operation, v.MediaPath, v.ArtifactPath, present, v.CachedAt})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Key", "Op", "Media", "Artifact", "Size", "Cached"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCacheSizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Show the total size of cached artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := cacheStore(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nSize:    %s\n", len(store.List()), humanBytes(store.Size()))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached artifact and reset the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := cacheStore(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}
			removed, err := store.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%d artifacts removed)\n", removed)
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key-prefix>",
		Short: "Remove one cache entry by key or unique key prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := cacheStore(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}
			key, err := resolveCacheKey(store, args[0])
			if err != nil {
				return err
			}
			if err := store.Remove(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key)
			return nil
		},
	}
}

func resolveCacheKey(store *cache.Store, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errors.New("cache key is required")
	}
	var matches []string
	for _, entry := range store.List() {
		if strings.HasPrefix(entry.Key, prefix) {
			matches = append(matches, entry.Key)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no cache entry matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("cache key prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func cacheStore(ctx *commandContext) (*cache.Store, string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	store, err := api.OpenCache(cfg, nil)
	switch {
	case errors.Is(err, api.ErrCacheDisabled):
		return nil, "Artifact cache is disabled (set [cache] enabled = true in config.toml)", nil
	case errors.Is(err, api.ErrCacheDirNotConfigured):
		return nil, "Cache dir is not configured", nil
	case err != nil:
		return nil, "", err
	}
	return store, "", nil
}
