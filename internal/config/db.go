package config

import (
	"fmt"
	"os"
)

// GetDatabaseDSN returns the MySQL connection string for alert and weather
// storage. A complete set of DB_* variables wins over DATABASE_DSN, which
// wins over the local default.
func GetDatabaseDSN() string {
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_NAME")

	if user != "" && password != "" && host != "" && port != "" && database != "" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, password, host, port, database)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}

	return defaultDSN
}

const defaultDSN = "rabiescast:rabiescast@tcp(localhost:3306)/rabiescast?parseTime=true"
