package cmd

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/dump"
)

// backupPrerequisites checks that a backup can run and returns the estimated database size
func backupPrerequisites(ctx context.Context, config ConfigStruct) (int64, error) {
	if err := checkDumpBinary(config.Mysql.DumpBinary); err != nil {
		return 0, err
	}

	if config.ScratchVolume.Enabled {
		// Make sure we are running as a DigitalOcean droplet
		if _, err := pkg.GetRunningInstanceData(ctx); err != nil {
			return 0, pkg.NewError(pkg.KindWorkspaceFailed, "scratch volumes can only be used on a DigitalOcean droplet", err)
		}
	} else if err := checkWorkspaceDirectory(config.WorkspaceDir); err != nil {
		return 0, err
	}

	db, err := dump.Open(config.Mysql.ConnectionConfig)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	size, err := dump.EstimateSize(ctx, db, config.Mysql.Database)
	if err != nil {
		return 0, err
	}

	pkg.Log.Infof("Database %s is about %s", config.Mysql.Database, humanize.IBytes(uint64(size)))

	return size, nil
}

func checkDumpBinary(binary string) error {
	if !pkg.IsBinaryInstalled(binary) {
		return pkg.NewError(pkg.KindDumpFailed, binary+" is not installed or not on PATH", nil)
	}
	return nil
}

// checkWorkspaceDirectory makes sure dir exists and is a directory, creating it when missing
func checkWorkspaceDirectory(dir string) error {
	dirInfo, err := os.Stat(dir)
	if err != nil && os.IsNotExist(err) {
		pkg.Log.Infof("Workspace directory did not exist. Attempting to create %s", dir)
		if err = os.MkdirAll(dir, 0755); err != nil {
			return pkg.NewError(pkg.KindWorkspaceFailed, "could not create workspace directory "+dir, err)
		}
		dirInfo, err = os.Stat(dir)
	}

	if err != nil {
		return pkg.NewError(pkg.KindWorkspaceFailed, "could not stat workspace directory "+dir, err)
	}

	if !dirInfo.IsDir() {
		return pkg.NewError(pkg.KindWorkspaceFailed, "workspace directory is not a directory: "+dir, nil)
	}

	return nil
}
