package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/artifact"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/spf13/cobra"
)

type objectDeleter interface {
	Delete(ctx context.Context, remoteFolder string, remoteName string) error
}

func newPruneCommand() *cobra.Command {
	var dryRun bool

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove backups older than retention.retention_in_days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configStruct.validateForStorage(); err != nil {
				return err
			}

			if configStruct.Retention == nil || configStruct.Retention.RetentionInDays <= 0 {
				return pkg.NewError(pkg.KindConfigInvalid, "retention.retention_in_days must be set to prune", nil)
			}

			ctx := cmd.Context()

			store, err := storage.New(ctx, configStruct.Storage)
			if err != nil {
				return err
			}

			removed, err := backupPrune(ctx, store, configStruct.Retention, time.Now(), dryRun)
			if err != nil {
				pkg.AlertError(configStruct.Alerting, "Could not prune old backups.", err)
				return err
			}

			if dryRun || len(removed) == 0 {
				pkg.Log.Infof("%d backups pruned", len(removed))
				return nil
			}

			pkg.AlertMessage(configStruct.Alerting, pruneSummary(removed, configStruct.Retention.RetentionInDays))
			return nil
		},
	}

	pruneCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be removed")

	return pruneCmd
}

// pruneSummary is the message sent out after backups have been removed
func pruneSummary(removed []backupItem, retentionInDays int) string {
	var freed int64
	for _, backup := range removed {
		freed += backup.Size
	}
	return fmt.Sprintf("Pruned %d backups older than %d days, freeing %s", len(removed), retentionInDays, humanize.Bytes(uint64(freed)))
}

func backupPrune(ctx context.Context, store storage.Store, retentionConfig *RetentionConfig, now time.Time, dryRun bool) ([]backupItem, error) {
	allBackups, err := listAllBackups(ctx, store)
	if err != nil {
		return nil, err
	}

	backupsToDelete := findBackupsThatCanBeDeleted(allBackups, now, retentionConfig)

	if dryRun {
		for _, backup := range backupsToDelete {
			pkg.Log.Infof("Would remove %s", backup.Folder)
		}
		return backupsToDelete, nil
	}

	return removeBackups(ctx, store, backupsToDelete)
}

// removeBackups deletes every object of each backup. The manifest goes first so a folder that is
// only partly removed is seen as incomplete, never as a valid backup.
func removeBackups(ctx context.Context, store objectDeleter, backups []backupItem) ([]backupItem, error) {
	removedBackups := make([]backupItem, 0)
	for _, backup := range backups {
		for _, name := range manifestFirst(backup.Objects) {
			if err := store.Delete(ctx, backup.Folder, name); err != nil {
				return removedBackups, err
			}
		}

		pkg.Log.WithField("folder", backup.Folder).Info("Backup removed")
		removedBackups = append(removedBackups, backup)
	}
	return removedBackups, nil
}

func manifestFirst(objects []string) []string {
	ordered := make([]string, 0, len(objects))
	for _, object := range objects {
		if object == artifact.ManifestFilename {
			ordered = append(ordered, object)
		}
	}
	for _, object := range objects {
		if object != artifact.ManifestFilename {
			ordered = append(ordered, object)
		}
	}
	return ordered
}

// findBackupsThatCanBeDeleted returns, newest first, the backups created before the retention cutoff.
// The newest complete backup is always kept, however old it is.
func findBackupsThatCanBeDeleted(allBackups []backupItem, now time.Time, retentionConfig *RetentionConfig) []backupItem {
	if retentionConfig == nil || retentionConfig.RetentionInDays <= 0 {
		return nil
	}

	cutoff := now.Add(-time.Duration(retentionConfig.RetentionInDays) * (time.Hour * 24))

	keep, hasKeep := latestCompleteBackup(sortedByCreation(allBackups))

	backupsToDelete := make([]backupItem, 0)
	for _, backup := range allBackups {
		if !backup.CreatedAt.Before(cutoff) {
			continue
		}
		if hasKeep && backup.Folder == keep.Folder {
			continue
		}
		backupsToDelete = append(backupsToDelete, backup)
	}

	sort.Slice(backupsToDelete, func(i, j int) bool {
		return backupsToDelete[i].CreatedAt.After(backupsToDelete[j].CreatedAt)
	})

	return backupsToDelete
}

func sortedByCreation(backups []backupItem) []backupItem {
	sorted := make([]backupItem, len(backups))
	copy(sorted, backups)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}
