package main

import (
	"fmt"
	"os"

	"github.com/feederco/chunked-db-backup/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(cmd.Begin(fmt.Sprintf("%s\ncommit %s\nbuilt %s", version, commit, date)))
}
