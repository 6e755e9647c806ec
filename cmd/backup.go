package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/dump"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configStruct ConfigStruct

// Begin begin! Returns the process exit code.
func Begin(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		pkg.Log.WithError(err).Error("Error running command")
		return 1
	}

	return 0
}

func newRootCommand(version string) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "chunked-db-backup",
		Short:         "Dump a MySQL database and upload it as a chunked, checksummed backup",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")

			var err error
			configStruct, err = loadConfig(v, cmd.Flags())
			if err != nil {
				return err
			}

			pkg.SetupLogging(verbose, configStruct.LogFormat)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")
	addConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newBackupCommand(),
		newUploadCommand(),
		newRestoreCommand(),
		newListCommand(),
		newPruneCommand(),
		newTestAlertCommand(),
	)

	return rootCmd
}

func newBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the database, compress, split and upload it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configStruct.validateForBackup(); err != nil {
				return err
			}

			ctx := cmd.Context()

			expectedSize, err := backupPrerequisites(ctx, configStruct)
			if err != nil {
				pkg.AlertError(configStruct.Alerting, "Failed prerequisite tests", err)
				return err
			}

			store, err := storage.New(ctx, configStruct.Storage)
			if err != nil {
				return err
			}

			dumper := dump.NewMysqlDumper(configStruct.Mysql.DumpBinary, configStruct.Mysql.ConnectionConfig)

			pipeline := newBackupPipeline(dumper, store, configStruct, newWorkspaceFactory(ctx, configStruct, expectedSize))
			pipeline.expectedDumpSize = expectedSize

			_, err = pipeline.run(ctx)
			return err
		},
	}
}

func newTestAlertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test-alert",
		Short: "Send a test alert to the configured channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg.AlertError(configStruct.Alerting, "This is a test alert. Please ignore.", errors.New("Test error"))
			return nil
		},
	}
}

// newWorkspaceFactory picks where run workspaces live
func newWorkspaceFactory(ctx context.Context, config ConfigStruct, expectedSize int64) workspaceFactory {
	if config.ScratchVolume.Enabled {
		return scratchVolumeWorkspaces(pkg.NewDigitalOceanClient(ctx, config.ScratchVolume.DOKey), expectedSize)
	}
	return localWorkspaces(config.WorkspaceDir)
}
