package publish

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from a Target.
func buildMySQLDSN(t Target) string {
	port := t.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		t.Username, t.Password, t.Host, port, t.Database,
	)
	if t.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
