// Package env holds the shared environment variable naming for the
// service commands
package env

const (
	// Prefix is the env variable prefix for all command flags
	Prefix = "RATE"

	// DBURLSuffix is the suffix of the DB connection string variable
	DBURLSuffix = "_DB_URL"
)
