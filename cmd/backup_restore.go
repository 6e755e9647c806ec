package cmd

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/artifact"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/spf13/cobra"
)

type objectDownloader interface {
	Download(ctx context.Context, key string, localPath string) error
}

func newRestoreCommand() *cobra.Command {
	var folder string
	var fromDir string
	var output string

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Download, verify and decompress a backup",
		Long: "Download a backup's manifest and parts, verify every part against the manifest, " +
			"reassemble them and decompress the result. Without --folder the newest complete backup is used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromDir != "" {
				return restoreFromDirectory(fromDir, output)
			}

			if err := configStruct.validateForStorage(); err != nil {
				return err
			}

			ctx := cmd.Context()

			store, err := storage.New(ctx, configStruct.Storage)
			if err != nil {
				return err
			}

			if folder == "" {
				allBackups, err := listAllBackups(ctx, store)
				if err != nil {
					return err
				}

				latest, ok := latestCompleteBackup(allBackups)
				if !ok {
					return pkg.NewError(pkg.KindVerificationFailed, "no complete backup found to restore from", nil)
				}
				folder = latest.Folder
			}

			return restoreFromStore(ctx, store, folder, localWorkspaces(configStruct.WorkspaceDir), output)
		},
	}

	restoreCmd.Flags().StringVar(&folder, "folder", "", "Remote backup folder to restore, e.g. databaseBackups/2024/Month-3/backup-2024-03-05T10-15-30-123Z")
	restoreCmd.Flags().StringVar(&fromDir, "from-dir", "", "Restore from a local directory holding the manifest and parts instead of the store")
	restoreCmd.Flags().StringVar(&output, "output", "", "Where to write the restored dump")
	_ = restoreCmd.MarkFlagRequired("output")
	restoreCmd.MarkFlagsMutuallyExclusive("folder", "from-dir")

	return restoreCmd
}

// restoreFromDirectory restores a backup whose manifest and parts are already on disk
func restoreFromDirectory(dir string, output string) error {
	backupArtifact, err := artifact.ReadManifest(filepath.Join(dir, artifact.ManifestFilename))
	if err != nil {
		return err
	}

	if err = artifact.Restore(backupArtifact, dir, output); err != nil {
		return err
	}

	pkg.Log.Infof("Restored %s to %s", backupArtifact.OriginalFilename, output)
	return nil
}

// restoreFromStore downloads the backup in folder to a workspace and restores it to output
func restoreFromStore(ctx context.Context, store objectDownloader, folder string, createWorkspace workspaceFactory, output string) (err error) {
	ws, err := createWorkspace(ctx, "restore-"+path.Base(folder)+"-"+time.Now().UTC().Format("20060102150405"))
	if err != nil {
		return err
	}
	defer func() {
		if cleanupErr := ws.Cleanup(context.WithoutCancel(ctx)); cleanupErr != nil {
			pkg.Log.WithError(cleanupErr).Warn("Could not remove restore workspace")
			if err == nil {
				err = cleanupErr
			}
		}
	}()

	log := pkg.Log.WithField("folder", folder)

	// - Manifest first: a folder without one is not a valid backup
	manifestFile := filepath.Join(ws.Dir, artifact.ManifestFilename)
	if err = store.Download(ctx, storage.ObjectKey(folder, artifact.ManifestFilename), manifestFile); err != nil {
		return pkg.NewFileError(pkg.KindVerificationFailed, artifact.ManifestFilename, "backup has no readable manifest", err)
	}

	backupArtifact, err := artifact.ReadManifest(manifestFile)
	if err != nil {
		return err
	}

	log.Infof("Downloading %d parts, %s", backupArtifact.TotalParts, humanize.IBytes(uint64(backupArtifact.TotalSize)))

	// Names are checked before any of them is used as a download target
	if err = artifact.ValidateNames(backupArtifact); err != nil {
		return err
	}

	// - Then every part it lists
	for _, part := range backupArtifact.Parts {
		if err = store.Download(ctx, storage.ObjectKey(folder, part.Filename), filepath.Join(ws.Dir, part.Filename)); err != nil {
			// A missing part is reported by verification below
			log.WithError(err).Warnf("Could not download %s", part.Filename)
		}
	}

	// - Verify, reassemble, decompress
	if err = artifact.Restore(backupArtifact, ws.Dir, output); err != nil {
		return err
	}

	log.Infof("Restored %s to %s", backupArtifact.OriginalFilename, output)
	return nil
}
