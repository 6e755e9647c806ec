package dump

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"time"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/go-sql-driver/mysql"
)

const sizeQuery = `SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = ?`

// DSN builds a go-sql-driver/mysql data source name for conn
func DSN(conn ConnectionConfig) string {
	config := mysql.NewConfig()
	config.User = conn.User
	config.Passwd = conn.Password
	config.Net = "tcp"
	config.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	config.DBName = conn.Database
	config.Timeout = 10 * time.Second
	return config.FormatDSN()
}

// Open connects to the database described by conn
func Open(conn ConnectionConfig) (*sql.DB, error) {
	return sql.Open("mysql", DSN(conn))
}

// EstimateSize checks that the database answers and estimates its size in bytes
func EstimateSize(ctx context.Context, db *sql.DB, database string) (int64, error) {
	if err := db.PingContext(ctx); err != nil {
		return 0, pkg.NewError(pkg.KindDumpFailed, "database is not reachable", err)
	}

	var size int64
	if err := db.QueryRowContext(ctx, sizeQuery, database).Scan(&size); err != nil {
		return 0, pkg.NewError(pkg.KindDumpFailed, "could not estimate database size", err)
	}

	return size, nil
}
