// Package dialect defines the driver contracts the object materializer and
// the lazy loader run their queries through.
//
// The dialect names identify the database backend a driver talks to:
//
//	dialect.SQLite   = "sqlite"
//	dialect.MySQL    = "mysql"
//	dialect.Postgres = "postgres"
//
// The dialect/sql sub-package implements Driver on top of database/sql.
package dialect
