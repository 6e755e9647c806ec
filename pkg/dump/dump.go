// Package dump produces the database dump a backup starts from.
package dump

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/feederco/chunked-db-backup/pkg"
)

const defaultDumpBinary = "mysqldump"

const stderrTailLines = 5

// ConnectionConfig holds what is needed to reach the database
type ConnectionConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
	Database string `mapstructure:"database" json:"database"`
}

// MysqlDumper runs mysqldump and writes its output to a file
type MysqlDumper struct {
	Binary    string
	Conn      ConnectionConfig
	ExtraArgs []string
}

// NewMysqlDumper creates a dumper using binary, or mysqldump from PATH when empty
func NewMysqlDumper(binary string, conn ConnectionConfig) *MysqlDumper {
	if binary == "" {
		binary = defaultDumpBinary
	}
	return &MysqlDumper{Binary: binary, Conn: conn}
}

func (d *MysqlDumper) args() []string {
	args := []string{
		"--host", d.Conn.Host,
		"--port", strconv.Itoa(d.Conn.Port),
		"--user", d.Conn.User,
		"--single-transaction",
		"--routines",
		"--triggers",
		"--events",
	}
	args = append(args, d.ExtraArgs...)
	return append(args, d.Conn.Database)
}

// Dump writes a complete dump to destination. On failure the file must be considered garbage.
func (d *MysqlDumper) Dump(ctx context.Context, destination string) error {
	name := filepath.Base(destination)

	outputFile, err := os.Create(destination)
	if err != nil {
		return pkg.NewFileError(pkg.KindDumpFailed, name, "could not create dump file", err)
	}
	defer outputFile.Close()

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, d.Binary, d.args()...)
	cmd.Stdout = outputFile
	cmd.Stderr = &stderr
	// Keeps the password out of the process list
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+d.Conn.Password)

	pkg.Log.WithField("database", d.Conn.Database).Infof("Dumping %s@%s:%d", d.Conn.User, d.Conn.Host, d.Conn.Port)

	if err = cmd.Run(); err != nil {
		message := "mysqldump failed"
		if tail := pkg.LastLines(stderr.String(), stderrTailLines); tail != "" {
			message += ": " + tail
		}
		return pkg.NewFileError(pkg.KindDumpFailed, name, message, err)
	}

	if err = outputFile.Close(); err != nil {
		return pkg.NewFileError(pkg.KindDumpFailed, name, "could not close dump file", err)
	}

	return nil
}

// FileDumper stands in for a database when the dump already exists on disk
type FileDumper struct {
	Source string
}

// Dump copies the existing dump to destination
func (d *FileDumper) Dump(ctx context.Context, destination string) error {
	name := filepath.Base(d.Source)

	input, err := os.Open(d.Source)
	if err != nil {
		return pkg.NewFileError(pkg.KindDumpFailed, name, "could not open existing dump", err)
	}
	defer input.Close()

	output, err := os.Create(destination)
	if err != nil {
		return pkg.NewFileError(pkg.KindDumpFailed, name, "could not create dump file", err)
	}
	defer output.Close()

	if _, err = output.ReadFrom(input); err != nil {
		return pkg.NewFileError(pkg.KindDumpFailed, name, "could not copy existing dump", err)
	}

	if err = ctx.Err(); err != nil {
		return pkg.NewFileError(pkg.KindDumpFailed, name, "dump cancelled", err)
	}

	return output.Close()
}
