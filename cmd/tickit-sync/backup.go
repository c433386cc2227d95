package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tickitapp/tickit-sync/internal/backup"
	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/di/providers"
	"github.com/tickitapp/tickit-sync/internal/logger"
	"github.com/tickitapp/tickit-sync/internal/service"
)

// withBackupService opens the configured store for the duration of fn.
func withBackupService(cmd *cobra.Command, configPath string, fn func(*backup.Service) error) error {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Writer:      cmd.ErrOrStderr(),
		Level:       logger.ParseLevel(cfg.Log.Level),
		Environment: cfg.App.Environment,
		Format:      cfg.Log.Format,
	})
	defer log.Close()

	st, err := providers.OpenStore(cfg.Database, log.Component("store"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	svc := service.NewSyncService(st, log.Component("sync"))
	return fn(backup.NewService(svc, version, log.Component("backup")))
}

func newBackupCmd() *cobra.Command {
	var (
		configPath string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write every list, tag, task and deletion to a zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = fmt.Sprintf("tickit-sync-%s.zip", time.Now().Format("2006-01-02-150405"))
			}
			return withBackupService(cmd, configPath, func(svc *backup.Service) error {
				result, err := svc.Create(cmd.Context(), output)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				color.New(color.FgGreen).Fprintf(out, "Backup written to %s\n", result.Path)
				printCounts(out, result.Counts)
				fmt.Fprintf(out, "  size:       %d bytes\n", result.Size)
				fmt.Fprintf(out, "  sha256:     %s\n", result.Checksum)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default tickit-sync-<timestamp>.zip)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "restore ARCHIVE",
		Short: "Merge a backup archive into the database",
		Long: `Merge a backup archive into the database.

Records are merged the same way a device sync is: a record that is newer on
the server is kept and reported as a conflict. Stop the server first when
using the badger driver.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupService(cmd, configPath, func(svc *backup.Service) error {
				result, err := svc.Restore(cmd.Context(), args[0], backup.RestoreOptions{DryRun: dryRun})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result.DryRun {
					color.New(color.FgYellow).Fprintf(out, "Dry run: %s is valid, nothing written\n", args[0])
				} else {
					color.New(color.FgGreen).Fprintf(out, "Restored %s\n", args[0])
				}
				fmt.Fprintf(out, "  created:    %s\n", result.Manifest.CreatedAt.Format(time.RFC3339))
				printCounts(out, result.Counts)
				if len(result.Conflicts) > 0 {
					fmt.Fprintf(out, "  kept newer: %d records already newer on the server\n", len(result.Conflicts))
				}
				if result.Superseded > 0 {
					fmt.Fprintf(out, "  skipped:    %d deletions of re-created records\n", result.Superseded)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the archive without writing")
	return cmd
}

func printCounts(out io.Writer, c backup.Counts) {
	fmt.Fprintf(out, "  lists:      %d\n", c.Lists)
	fmt.Fprintf(out, "  tags:       %d\n", c.Tags)
	fmt.Fprintf(out, "  tasks:      %d\n", c.Tasks)
	fmt.Fprintf(out, "  deletions:  %d\n", c.Tombstones)
}
