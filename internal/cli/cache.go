package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry response cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached registry responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := registryCacheDir()
			if err != nil {
				return err
			}
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
				return nil
			}
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", dir)
			return nil
		},
	}
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := registryCacheDir()
			if err != nil {
				return err
			}

			var entries int
			var bytes int64
			err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return nil
				}
				entries++
				bytes += info.Size()
				return nil
			})
			if err != nil && !os.IsNotExist(err) {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "directory: %s\nentries:   %d\nsize:      %d bytes\n", dir, entries, bytes)
			return nil
		},
	}
}
