package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL targets a networked MySQL or MariaDB server.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) DSN(params Params) (string, error) {
	if params.Host == "" {
		return "", errors.New("mysql dialect requires a host")
	}
	if params.Database == "" {
		return "", errors.New("mysql dialect requires a database name")
	}

	port := params.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", params.Host, port)
	cfg.User = params.User
	cfg.Passwd = params.Password
	cfg.DBName = params.Database
	cfg.ParseTime = true
	cfg.MultiStatements = true

	return cfg.FormatDSN(), nil
}

func (d MySQL) CreateHistoryTableSQL(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"version        varchar(32) not null, "+
			"description    varchar(200) not null, "+
			"checksum       char(64) not null, "+
			"execution_time bigint not null, "+
			"success        tinyint(1) not null, "+
			"executed_at    bigint not null, "+
			"primary key (version)"+
			") default charset utf8mb4",
		d.QuoteIdentifier(table),
	)
}

func (MySQL) QuoteIdentifier(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) ErrorCode(err error) (int, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return int(myErr.Number), true
	}
	return 0, false
}
