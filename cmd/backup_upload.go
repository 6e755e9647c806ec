package cmd

import (
	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/dump"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/spf13/cobra"
)

// newUploadCommand runs the pipeline on a dump that already exists instead of dumping the database
func newUploadCommand() *cobra.Command {
	var uploadFile string

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Compress, split and upload an existing dump file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configStruct.validateForStorage(); err != nil {
				return err
			}
			if err := configStruct.validateForArtifact(); err != nil {
				return err
			}

			dumpSize, err := pkg.FileOrDirSize(uploadFile)
			if err != nil {
				return pkg.NewFileError(pkg.KindDumpFailed, uploadFile, "could not read dump file", err)
			}

			ctx := cmd.Context()

			store, err := storage.New(ctx, configStruct.Storage)
			if err != nil {
				return err
			}

			pipeline := newBackupPipeline(&dump.FileDumper{Source: uploadFile}, store, configStruct, newWorkspaceFactory(ctx, configStruct, dumpSize))
			pipeline.expectedDumpSize = dumpSize

			_, err = pipeline.run(ctx)
			return err
		},
	}

	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "Dump file to upload")
	_ = uploadCmd.MarkFlagRequired("file")

	return uploadCmd
}
