package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/artifact"
	"github.com/feederco/chunked-db-backup/pkg/dump"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultConfigPath = "/etc/chunked-db-backup.json"

const envPrefix = "BACKUP"

// ConfigStruct contains everything a run needs. It is loaded from, in increasing order of precedence,
// defaults, a JSON config file, BACKUP_* environment variables and command line flags.
type ConfigStruct struct {
	Mysql         MysqlConfig         `mapstructure:"mysql"`
	Storage       storage.Config      `mapstructure:"storage"`
	ChunkSize     int64               `mapstructure:"chunk_size"`
	WorkspaceDir  string              `mapstructure:"workspace_dir"`
	LogFormat     string              `mapstructure:"log_format"`
	Upload        UploadConfig        `mapstructure:"upload"`
	ScratchVolume ScratchVolumeConfig `mapstructure:"scratch_volume"`
	Alerting      *pkg.AlertingConfig `mapstructure:"alerting"`
	Retention     *RetentionConfig    `mapstructure:"retention"`
}

// MysqlConfig is the database to back up and the dump tool to use
type MysqlConfig struct {
	dump.ConnectionConfig `mapstructure:",squash"`
	DumpBinary            string `mapstructure:"dump_binary"`
}

// UploadConfig is the retry policy for uploads
type UploadConfig struct {
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ScratchVolumeConfig makes runs use a freshly created DigitalOcean volume as their workspace
type ScratchVolumeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DOKey   string `mapstructure:"do_key"`
}

// RetentionConfig contains options for removing old backups
type RetentionConfig struct {
	RetentionInDays int `mapstructure:"retention_in_days"`
}

// flagBindings maps command line flags to config keys
var flagBindings = map[string]string{
	"mysql-host":         "mysql.host",
	"mysql-port":         "mysql.port",
	"mysql-user":         "mysql.user",
	"mysql-password":     "mysql.password",
	"mysql-database":     "mysql.database",
	"mysqldump":          "mysql.dump_binary",
	"storage-provider":   "storage.provider",
	"storage-endpoint":   "storage.endpoint",
	"storage-bucket":     "storage.bucket",
	"storage-region":     "storage.region",
	"storage-access-key": "storage.access_key",
	"storage-secret-key": "storage.secret_key",
	"storage-local-path": "storage.local_path",
	"chunk-size":         "chunk_size",
	"workspace-dir":      "workspace_dir",
	"log-format":         "log_format",
	"do-key":             "scratch_volume.do_key",
	"scratch-volume":     "scratch_volume.enabled",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "")
	v.SetDefault("mysql.dump_binary", "mysqldump")

	v.SetDefault("storage.provider", storage.ProviderMinio)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.local_path", "")

	v.SetDefault("chunk_size", artifact.DefaultChunkSize)
	v.SetDefault("workspace_dir", os.TempDir())
	v.SetDefault("log_format", "text")

	v.SetDefault("upload.attempts", pkg.DefaultAttempts)
	v.SetDefault("upload.retry_delay", pkg.DefaultRetryDelay)

	v.SetDefault("scratch_volume.enabled", false)
	v.SetDefault("scratch_volume.do_key", "")

	v.SetDefault("alerting.slack.webhook_url", "")
	v.SetDefault("alerting.slack.channel", "")
	v.SetDefault("alerting.slack.username", "")
	v.SetDefault("alerting.slack.icon_emoji", "")

	v.SetDefault("retention.retention_in_days", 0)
}

// addConfigFlags registers the flags that override config values
func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a JSON config file to load default configs from. (Default: "+defaultConfigPath+")")

	flags.String("mysql-host", "", "MySQL host")
	flags.Int("mysql-port", 0, "MySQL port")
	flags.String("mysql-user", "", "MySQL user")
	flags.String("mysql-password", "", "MySQL password")
	flags.String("mysql-database", "", "MySQL database to back up")
	flags.String("mysqldump", "", "Path to the mysqldump binary")

	flags.String("storage-provider", "", "Object store to upload to: minio, s3 or local")
	flags.String("storage-endpoint", "", "Object store endpoint, e.g. ams3.digitaloceanspaces.com")
	flags.String("storage-bucket", "", "Bucket backups are stored in")
	flags.String("storage-region", "", "Bucket region")
	flags.String("storage-access-key", "", "Object store access key")
	flags.String("storage-secret-key", "", "Object store secret key")
	flags.String("storage-local-path", "", "Directory used by the local storage provider")

	flags.Int64("chunk-size", 0, "Largest part uploaded, in bytes")
	flags.String("workspace-dir", "", "Directory run workspaces are created in")
	flags.String("log-format", "", "Log format: text or json")

	flags.String("do-key", "", "DigitalOcean OAuth2 key created in \"Applications & API\"")
	flags.Bool("scratch-volume", false, "Create a DigitalOcean volume to use as the run workspace")
}

func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (ConfigStruct, error) {
	var configStruct ConfigStruct

	// A missing .env is fine
	_ = godotenv.Load()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagBindings {
		if flag := flags.Lookup(flagName); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return configStruct, err
			}
		}
	}

	configPath, _ := flags.GetString("config")
	if err := readConfigFile(v, configPath); err != nil {
		return configStruct, err
	}

	if err := v.Unmarshal(&configStruct); err != nil {
		return configStruct, pkg.NewError(pkg.KindConfigInvalid, "could not decode config", err)
	}

	return configStruct, nil
}

func readConfigFile(v *viper.Viper, configPath string) error {
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err != nil {
		// If the default file doesn't exist we don't error. But if it does and is broken we do.
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return pkg.NewError(pkg.KindConfigInvalid, "could not load file from --config", err)
	}

	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		return pkg.NewError(pkg.KindConfigInvalid, fmt.Sprintf("could not load config file %s", configPath), err)
	}

	return nil
}

// validateForBackup checks the settings a backup run needs
func (c ConfigStruct) validateForBackup() error {
	if err := c.validateForStorage(); err != nil {
		return err
	}

	missing := make([]string, 0)
	if c.Mysql.Host == "" {
		missing = append(missing, "mysql.host")
	}
	if c.Mysql.User == "" {
		missing = append(missing, "mysql.user")
	}
	if c.Mysql.Database == "" {
		missing = append(missing, "mysql.database")
	}
	if len(missing) > 0 {
		return pkg.NewError(pkg.KindConfigInvalid, "missing database settings: "+strings.Join(missing, ", "), nil)
	}

	return c.validateForArtifact()
}

func (c ConfigStruct) validateForArtifact() error {
	if c.ChunkSize <= 0 {
		return pkg.NewError(pkg.KindConfigInvalid, "chunk_size must be positive", nil)
	}

	if c.Upload.Attempts <= 0 {
		return pkg.NewError(pkg.KindConfigInvalid, "upload.attempts must be at least 1", nil)
	}

	if c.ScratchVolume.Enabled && c.ScratchVolume.DOKey == "" {
		return pkg.NewError(pkg.KindConfigInvalid, "scratch_volume.do_key is required when scratch_volume.enabled is set", nil)
	}

	return nil
}

func (c ConfigStruct) validateForStorage() error {
	return c.Storage.Validate()
}
