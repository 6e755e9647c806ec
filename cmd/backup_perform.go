package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/artifact"
	"github.com/feederco/chunked-db-backup/pkg/upload"
	"github.com/sirupsen/logrus"
)

const partsDirectory = "parts"

// dumper writes a database dump to destination
type dumper interface {
	Dump(ctx context.Context, destination string) error
}

// backupPipeline runs one backup: dump, compress, segment, manifest, upload.
// Every step runs in a fresh workspace that is removed however the run ends.
type backupPipeline struct {
	dumper          dumper
	store           upload.Store
	retrier         pkg.Retrier
	chunkSize       int64
	createWorkspace workspaceFactory
	alerting        *pkg.AlertingConfig

	// expectedDumpSize is used for progress reporting only. Zero disables it.
	expectedDumpSize int64

	now           func() time.Time
	compress      func(src string, dst string) (int64, error)
	segment       func(src string, chunkSize int64, destDir string) ([]artifact.Part, error)
	buildManifest func(parts []artifact.Part, originalFilename string, createdAt artifact.Timestamp) (*artifact.Artifact, error)
}

// backupReport is what a successful run produced
type backupReport struct {
	Folder   string
	Artifact *artifact.Artifact
	Upload   *upload.Result
}

func newBackupPipeline(d dumper, store upload.Store, config ConfigStruct, createWorkspace workspaceFactory) *backupPipeline {
	return &backupPipeline{
		dumper:          d,
		store:           store,
		retrier:         pkg.NewRetrier(config.Upload.Attempts, config.Upload.RetryDelay),
		chunkSize:       config.ChunkSize,
		createWorkspace: createWorkspace,
		alerting:        config.Alerting,
		now:             time.Now,
		compress:        artifact.Compress,
		segment:         artifact.Segment,
		buildManifest:   artifact.BuildManifest,
	}
}

func (p *backupPipeline) run(ctx context.Context) (report *backupReport, err error) {
	createdAt := artifact.NewTimestamp(p.now())
	backupName := artifact.BackupName(createdAt)
	log := pkg.Log.WithField("backup", backupName)

	log.Info("Backup started")

	ws, err := p.createWorkspace(ctx, backupName)
	if err != nil {
		p.alert("Could not create workspace.", err)
		return nil, err
	}

	// !! From this point onward we have created things that need to be cleaned up
	defer func() {
		cleanupErr := ws.Cleanup(context.WithoutCancel(ctx))
		if cleanupErr == nil {
			return
		}
		if err == nil {
			p.alert("Backup uploaded but the workspace could not be removed.", cleanupErr)
			err = cleanupErr
			return
		}
		log.WithError(cleanupErr).Warn("Could not remove workspace after failed backup")
	}()

	report, err = p.runInWorkspace(ctx, ws, createdAt, log)
	if err != nil {
		p.alert("Backup failed.", err)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"folder": report.Folder,
		"parts":  report.Artifact.TotalParts,
		"size":   humanize.IBytes(uint64(report.Artifact.TotalSize)),
	}).Info("Backup completed")

	return report, nil
}

func (p *backupPipeline) runInWorkspace(ctx context.Context, ws *workspace, createdAt artifact.Timestamp, log *logrus.Entry) (*backupReport, error) {
	backupName := artifact.BackupName(createdAt)
	dumpFile := filepath.Join(ws.Dir, backupName+".sql")
	compressedName := backupName + ".sql.gz"
	compressedFile := filepath.Join(ws.Dir, compressedName)

	// - Dump the database
	stopProgress := pkg.ReportProgressOnFileSize(dumpFile, p.expectedDumpSize)
	err := p.dumper.Dump(ctx, dumpFile)
	stopProgress()
	if err != nil {
		return nil, err
	}

	dumpSize, err := pkg.FileOrDirSize(dumpFile)
	if err != nil {
		return nil, pkg.NewFileError(pkg.KindDumpFailed, dumpFile, "dump file missing after dump", err)
	}
	log.Infof("Dump written: %s", humanize.IBytes(uint64(dumpSize)))

	// - Compress it
	compressedSize, err := p.compress(dumpFile, compressedFile)
	if err != nil {
		return nil, err
	}
	log.Infof("Dump compressed: %s", humanize.IBytes(uint64(compressedSize)))

	if removeErr := os.Remove(dumpFile); removeErr != nil {
		log.WithError(removeErr).Warn("Could not remove uncompressed dump. Continuing anyway.")
	}

	// - Split it if it is larger than a chunk
	var parts []artifact.Part
	if compressedSize <= p.chunkSize {
		parts, err = artifact.SinglePart(compressedFile)
	} else {
		log.Infof("Splitting into %d parts of at most %s", artifact.PartCount(compressedSize, p.chunkSize), humanize.IBytes(uint64(p.chunkSize)))
		parts, err = p.segment(compressedFile, p.chunkSize, filepath.Join(ws.Dir, partsDirectory))
	}
	if err != nil {
		return nil, err
	}

	// - Describe the parts
	backupArtifact, err := p.buildManifest(parts, compressedName, createdAt)
	if err != nil {
		return nil, err
	}

	if backupArtifact.TotalSize != compressedSize {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, compressedName, "parts do not add up to the compressed file", nil)
	}

	manifestFile := filepath.Join(ws.Dir, artifact.ManifestFilename)
	if err = artifact.WriteManifest(backupArtifact, manifestFile); err != nil {
		return nil, err
	}

	// - Upload parts, manifest last
	folder := artifact.RemoteFolder(createdAt)
	files := make([]upload.File, 0, len(parts))
	for _, part := range parts {
		files = append(files, upload.File{LocalPath: part.Path, RemoteName: part.Filename})
	}

	result, err := upload.NewCoordinator(p.store, p.retrier).Upload(ctx, folder, files, upload.File{
		LocalPath:  manifestFile,
		RemoteName: artifact.ManifestFilename,
	})
	if err != nil {
		return nil, err
	}

	return &backupReport{
		Folder:   folder,
		Artifact: backupArtifact,
		Upload:   result,
	}, nil
}

func (p *backupPipeline) alert(message string, err error) {
	pkg.AlertError(p.alerting, message, err)
}
