package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/artifact"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/spf13/cobra"
)

// backupItem is one backup folder in the store
type backupItem struct {
	Folder    string
	CreatedAt time.Time
	Size      int64

	// Objects are the names of the files in Folder
	Objects []string

	// Complete is set when the folder holds a manifest. Folders without one are the remains of a failed run.
	Complete bool
}

// Parts is the number of files in the folder that are not the manifest
func (b backupItem) Parts() int {
	parts := 0
	for _, object := range b.Objects {
		if object != artifact.ManifestFilename {
			parts++
		}
	}
	return parts
}

type objectLister interface {
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// listAllBackups groups the objects under the backup root by folder, oldest first
func listAllBackups(ctx context.Context, store objectLister) ([]backupItem, error) {
	objects, err := store.List(ctx, artifact.RemoteRoot+"/")
	if err != nil {
		return nil, err
	}

	byFolder := make(map[string]*backupItem)

	for _, object := range objects {
		folder := path.Dir(object.Key)

		createdAt, err := parseBackupFolder(folder)
		if err != nil {
			pkg.Log.WithError(err).Debugf("Skipping %s", object.Key)
			continue
		}

		item, ok := byFolder[folder]
		if !ok {
			item = &backupItem{Folder: folder, CreatedAt: createdAt}
			byFolder[folder] = item
		}

		name := path.Base(object.Key)
		item.Objects = append(item.Objects, name)
		item.Size += object.Size
		if name == artifact.ManifestFilename {
			item.Complete = true
		}
	}

	backupItems := make([]backupItem, 0, len(byFolder))
	for _, item := range byFolder {
		sort.Strings(item.Objects)
		backupItems = append(backupItems, *item)
	}

	sort.Slice(backupItems, func(i, j int) bool {
		return backupItems[i].CreatedAt.Before(backupItems[j].CreatedAt)
	})

	return backupItems, nil
}

// parseBackupFolder reads the creation time from a folder named
// databaseBackups/$YEAR/Month-$MONTH/backup-$STAMP
func parseBackupFolder(folder string) (time.Time, error) {
	pieces := strings.Split(folder, "/")
	if len(pieces) != 4 {
		return time.Time{}, errors.New("Incorrect format for folder: " + folder)
	}

	if pieces[0] != artifact.RemoteRoot {
		return time.Time{}, errors.New("Incorrect root for folder: " + folder)
	}

	if !strings.HasPrefix(pieces[3], "backup-") {
		return time.Time{}, errors.New("Incorrect prefix for folder: " + folder)
	}

	createdAt, err := artifact.ParseFolderStamp(strings.TrimPrefix(pieces[3], "backup-"))
	if err != nil {
		return time.Time{}, err
	}

	if artifact.RemoteFolder(artifact.NewTimestamp(createdAt)) != folder {
		return time.Time{}, fmt.Errorf("Folder %s does not match its timestamp %s", folder, createdAt.Format(time.RFC3339))
	}

	return createdAt, nil
}

// latestCompleteBackup is the newest backup that has a manifest
func latestCompleteBackup(allBackups []backupItem) (backupItem, bool) {
	for i := len(allBackups) - 1; i >= 0; i-- {
		if allBackups[i].Complete {
			return allBackups[i], true
		}
	}
	return backupItem{}, false
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the backups in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configStruct.validateForStorage(); err != nil {
				return err
			}

			ctx := cmd.Context()

			store, err := storage.New(ctx, configStruct.Storage)
			if err != nil {
				return err
			}

			allBackups, err := listAllBackups(ctx, store)
			if err != nil {
				return err
			}

			printBackups(os.Stdout, allBackups)
			return nil
		},
	}
}

func printBackups(output io.Writer, backups []backupItem) {
	writer := tabwriter.NewWriter(output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "FOLDER\tCREATED\tPARTS\tSIZE\tSTATUS")

	for _, backup := range backups {
		status := "complete"
		if !backup.Complete {
			status = "INCOMPLETE"
		}

		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			backup.Folder,
			backup.CreatedAt.Format(time.RFC3339),
			backup.Parts(),
			humanize.IBytes(uint64(backup.Size)),
			status,
		)
	}

	writer.Flush()
}
